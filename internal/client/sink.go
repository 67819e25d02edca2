package client

//go:generate mockgen -source=sink.go -destination=mocks/mock_sink.go -package=mocks

// Sink 是由 Session 驱动的展示层。所有调用都来自同一个分发协程，顺序与产生顺序一致。
type Sink interface {
	// AppendMessage 展示一行已格式化的文本。
	AppendMessage(text string)
	// UpdateRoster 替换展示的成员名单。
	UpdateRoster(names []string)
	// SetConnected 切换依赖连接的控件状态。
	SetConnected(connected bool)
	// ShowError 向用户展示错误。
	ShowError(title, message string)
}
