package host

import (
	"encoding/json"
	"fmt"

	"github.com/fixkme/timerd/errs"
)

type ResponseCode int32

const (
	Unknown ResponseCode = iota
	Success
	Error
	Deferred // 结果稍后通过其他途径返回
)

var responseCodeNames = [...]string{"Unknown", "Success", "Error", "Deferred"}

func (c ResponseCode) String() string {
	if c < 0 || int(c) >= len(responseCodeNames) {
		return fmt.Sprintf("ResponseCode(%d)", int32(c))
	}
	return responseCodeNames[c]
}

func (c ResponseCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ResponseCode) UnmarshalText(b []byte) error {
	for i, name := range responseCodeNames {
		if name == string(b) {
			*c = ResponseCode(i)
			return nil
		}
	}
	return errs.Format.Printf("response code %q", b)
}

// Response 一次调用的结果. Data为nil表示结果缺省
type Response struct {
	Code    ResponseCode `json:"code"`
	Data    *string      `json:"data,omitempty"`
	Error   string       `json:"error,omitempty"`
	ErrCode int32        `json:"ecode,omitempty"`
}

func SuccessResponse(data string) *Response {
	return &Response{Code: Success, Data: &data}
}

func ErrorResponse(err error) *Response {
	ce := errs.WrapError(err)
	return &Response{Code: Error, Error: ce.Error(), ErrCode: ce.Code()}
}

// Result 还原成 Call 的返回形式
func (r *Response) Result() (string, bool, error) {
	switch r.Code {
	case Success:
		if r.Data == nil {
			return "", false, nil
		}
		return *r.Data, true, nil
	case Error:
		code := r.ErrCode
		if code == errs.ErrCode_OK {
			code = errs.ErrCode_Unknown
		}
		return "", false, errs.CreateCodeError(code, r.Error)
	default:
		return "", false, errs.Unknown.Printf("response code %s", r.Code)
	}
}

func (r *Response) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
