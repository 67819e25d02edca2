// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Status 是错误在线路上的表示形式：错误码 + 面向用户的原因描述。
type Status struct {
	Code int32  `json:"code"`
	Msg  string `json:"msg"`
}

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case chatError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

func IsRetryableErr(err error) bool {
	if err, ok := errors.Cause(err).(chatError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

// StatusOf 根据给定错误构造 Status。
// 当 err 为空时，返回一个表示成功的 Status。
//
// Msg 取叶子错误的描述，保证面向用户的提示语在跨进程传递后保持原样。
func StatusOf(err error) *Status {
	if err == nil {
		return &Status{}
	}

	msg := err.Error()
	if leaf, ok := errors.Cause(err).(chatError); ok {
		msg = leaf.Error()
	}
	return &Status{
		Code: Code(err),
		Msg:  msg,
	}
}

func Success(reason ...string) *Status {
	status := StatusOf(nil)
	// NOLINT
	status.Msg = strings.Join(reason, " ")
	return status
}

func Ok(status *Status) bool {
	return status != nil && status.Code == 0
}

// Error returns a error according to the given status,
// returns nil if the status is a success status
//
// 已登记的错误码会还原 retriable/errType 属性，使 errors.Is 与 IsRetryableErr 在对端依旧成立。
func Error(status *Status) error {
	if Ok(status) {
		return nil
	}

	if v, ok := registry.Load(status.Code); ok {
		leaf := v.(chatError)
		return withMessage(leaf, status.Msg)
	}
	switch status.Code {
	case CanceledCode:
		return errors.Wrap(context.Canceled, status.Msg)
	case TimeoutCode:
		return errors.Wrap(context.DeadlineExceeded, status.Msg)
	}
	return chatError{msg: status.Msg, detail: status.Msg, errCode: status.Code}
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(chatError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(chatError); ok {
		return merr.errType
	}

	return SystemError
}

// Service 相关错误封装。
func WrapErrServiceUnavailable(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceUnavailable, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceInternal(reason string, msg ...string) error {
	err := wrapFieldsWithDesc(ErrServiceInternal, reason)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrServiceUnimplemented(op string) error {
	return wrapFields(ErrServiceUnimplemented, value("op", op))
}

// Participant 相关错误封装，提示语会原样展示给最终用户。
func WrapErrInvalidUsername(name string) error {
	err := ErrInvalidUsername
	err.msg = "Invalid username format. Username must be 3-20 characters and contain only letters, numbers, underscores, and hyphens."
	err.detail = err.msg + value("username", name).String()
	return err
}

func WrapErrDuplicateUsername(name string) error {
	return withMessage(ErrDuplicateUsername, fmt.Sprintf("Username '%s' is already in use", name))
}

func WrapErrInvalidArgument(reason string) error {
	return withMessage(ErrInvalidArgument, reason)
}

func WrapErrStaleRoster(expected, actual uint64) error {
	return withMessage(ErrStaleRoster,
		fmt.Sprintf("The user list changed (generation %d, current %d). Please reselect recipients.", expected, actual))
}

// Connection 相关错误封装。
func WrapErrConnectFailure(addr string, attempts uint, cause error) error {
	msg := fmt.Sprintf("Failed to connect to server at %s after %d attempt(s)", addr, attempts)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return withMessage(ErrConnectFailure, msg+". Please ensure the server is running and try again.")
}

func WrapErrRegistrationFailure(cause error) error {
	msg := "Failed to register client"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return withMessage(ErrRegistrationFailure, msg)
}

func WrapErrEndpointNotFound(endpoint string) error {
	return wrapFields(ErrEndpointNotFound, value("endpoint", endpoint))
}

func WrapErrIncompatibleVersion(remote, local string) error {
	return wrapFields(ErrIncompatibleVersion, value("remote", remote), value("local", local))
}

// Delivery 相关错误封装。
func WrapErrDeliveryFailure(recipient string, cause error) error {
	if cause == nil {
		return wrapFields(ErrDeliveryFailure, value("recipient", recipient))
	}
	return wrapFieldsWithDesc(ErrDeliveryFailure, cause.Error(), value("recipient", recipient))
}

func WrapErrCallTimeout(op string, timeout time.Duration) error {
	return wrapFields(ErrCallTimeout, value("op", op), value("timeout", timeout))
}

func WrapErrNotConnected(msg ...string) error {
	err := withMessage(ErrNotConnected, "Please connect to the server first")
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func withMessage(err chatError, msg string) error {
	if msg == "" {
		return err
	}
	err.msg = msg
	err.detail = msg
	return err
}

func wrapFields(err chatError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err chatError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
