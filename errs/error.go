package errs

import (
	"errors"
	"fmt"
	"strings"
)

// CodeError 带错误码的错误, 跨进程传输时只保留 Code 和 Error()
type CodeError interface {
	error
	Code() int32
	Print(extras ...string) CodeError
	Printf(format string, args ...any) CodeError
	Is(error) bool
}

func CreateCodeError(code int32, desc string) CodeError {
	return &codeError{Errno: code, Desc: desc}
}

// WrapError 非CodeError统一归为Unknown
func WrapError(err error) CodeError {
	if err == nil {
		return nil
	}
	var x CodeError
	if errors.As(err, &x) {
		return x
	}
	return CreateCodeError(ErrCode_Unknown, err.Error())
}

// CodeOf 返回err的错误码, nil为ErrCode_OK
func CodeOf(err error) int32 {
	if err == nil {
		return ErrCode_OK
	}
	return WrapError(err).Code()
}

type codeError struct {
	Errno int32
	Desc  string
}

func (e *codeError) Code() int32 {
	return e.Errno
}

func (e *codeError) Error() string {
	return e.Desc
}

func (e *codeError) String() string {
	return fmt.Sprintf("errno: %d, desc: %s", e.Errno, e.Desc)
}

func (e *codeError) Print(extras ...string) CodeError {
	if len(extras) == 0 {
		return e
	}
	var builder strings.Builder
	builder.WriteString(e.Desc)
	for _, extra := range extras {
		builder.WriteByte(',')
		builder.WriteString(extra)
	}
	return &codeError{Errno: e.Errno, Desc: builder.String()}
}

func (e *codeError) Printf(format string, args ...any) CodeError {
	if len(format) == 0 {
		return e
	}
	return &codeError{Errno: e.Errno, Desc: e.Desc + "," + fmt.Sprintf(format, args...)}
}

// Is 同错误码即相等, 配合errors.Is使用
func (e *codeError) Is(target error) bool {
	if x, ok := target.(*codeError); ok {
		return x.Errno == e.Errno
	}
	return false
}
