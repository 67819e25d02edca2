package protocol

// Empty 用于没有内容的请求或响应。
type Empty struct{}

// RegisterRequest 将当前连接登记为名为 Endpoint 的回调端点。
type RegisterRequest struct {
	Endpoint string `json:"endpoint"`
	Version  string `json:"version"`
}

type RegisterResponse struct {
	ServerVersion string `json:"server_version"`
	Service       string `json:"service"`
}

// JoinRequest 对应 join(username, hostAddress, callbackEndpointName)。
type JoinRequest struct {
	Username    string `json:"username"`
	HostAddress string `json:"host_address"`
	Endpoint    string `json:"endpoint"`
}

type JoinResponse struct {
	Generation uint64 `json:"generation"`
}

type LeaveRequest struct {
	Username string `json:"username"`
}

type UpdateChatRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// SendPMRequest 按名单下标指定私信接收者。
//
// Generation 为发送方计算下标时所依据的名单版本，0 表示未知。
type SendPMRequest struct {
	Indices    []int  `json:"indices"`
	Message    string `json:"message"`
	Generation uint64 `json:"generation,omitempty"`
}

type SendPMResponse struct {
	Delivered int `json:"delivered"`
}

type RosterResponse struct {
	Names      []string `json:"names"`
	Generation uint64   `json:"generation"`
}

// DeliverRequest 为服务端推送给客户端的一行已格式化文本。
type DeliverRequest struct {
	Text string `json:"text"`
}

// UpdateRosterRequest 为服务端推送给客户端的完整名单。
type UpdateRosterRequest struct {
	Names      []string `json:"names"`
	Generation uint64   `json:"generation"`
}
