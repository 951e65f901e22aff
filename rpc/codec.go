package rpc

import (
	"encoding/binary"

	"github.com/fixkme/timerd/errs"
	"github.com/fixkme/timerd/host"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// 帧格式: 4字节小端长度 + protobuf数据
// 请求是ListValue [seq, op, args...], 回应是Struct {seq, code, data?, error?, ecode?}
const (
	msgLenSize = 4
	maxMsgSize = 4 << 20
)

var byteOrder binary.ByteOrder = binary.LittleEndian

// rpc消息的全局解码器，客户端、服务端共用
var defaultUnmarshaler = proto.UnmarshalOptions{
	AllowPartial:   true,
	DiscardUnknown: true,
	RecursionLimit: 100,
}

// rpc消息的全局编码器，客户端、服务端共用
var defaultMarshaler = proto.MarshalOptions{
	AllowPartial:  true,
	Deterministic: true,
}

type Request struct {
	Seq  uint32
	Op   string
	Args []string
}

func encodeFrame(m proto.Message) ([]byte, error) {
	sz := defaultMarshaler.Size(m)
	buf := make([]byte, msgLenSize, msgLenSize+sz)
	data, err := defaultMarshaler.MarshalAppend(buf, m)
	if err != nil {
		return nil, err
	}
	byteOrder.PutUint32(data[:msgLenSize], uint32(len(data)-msgLenSize))
	return data, nil
}

func EncodeRequest(req *Request) ([]byte, error) {
	values := make([]*structpb.Value, 0, 2+len(req.Args))
	values = append(values, structpb.NewNumberValue(float64(req.Seq)), structpb.NewStringValue(req.Op))
	for _, a := range req.Args {
		values = append(values, structpb.NewStringValue(a))
	}
	return encodeFrame(&structpb.ListValue{Values: values})
}

// DecodeRequest payload不含长度头
func DecodeRequest(payload []byte) (*Request, error) {
	lv := &structpb.ListValue{}
	if err := defaultUnmarshaler.Unmarshal(payload, lv); err != nil {
		return nil, errs.Format.Printf("request: %v", err)
	}
	vs := lv.GetValues()
	if len(vs) < 2 {
		return nil, errs.Format.Printf("request has %d values", len(vs))
	}
	seq, ok := vs[0].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return nil, errs.Format.Print("request seq")
	}
	op, ok := vs[1].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, errs.Format.Print("request op")
	}
	req := &Request{Seq: uint32(seq.NumberValue), Op: op.StringValue, Args: make([]string, 0, len(vs)-2)}
	for i, v := range vs[2:] {
		s, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, errs.Format.Printf("request arg %d", i)
		}
		req.Args = append(req.Args, s.StringValue)
	}
	return req, nil
}

func EncodeResponse(seq uint32, rsp *host.Response) ([]byte, error) {
	fields := map[string]*structpb.Value{
		"seq":  structpb.NewNumberValue(float64(seq)),
		"code": structpb.NewNumberValue(float64(rsp.Code)),
	}
	if rsp.Data != nil {
		fields["data"] = structpb.NewStringValue(*rsp.Data)
	}
	if rsp.Error != "" {
		fields["error"] = structpb.NewStringValue(rsp.Error)
		fields["ecode"] = structpb.NewNumberValue(float64(rsp.ErrCode))
	}
	return encodeFrame(&structpb.Struct{Fields: fields})
}

func DecodeResponse(payload []byte) (uint32, *host.Response, error) {
	st := &structpb.Struct{}
	if err := defaultUnmarshaler.Unmarshal(payload, st); err != nil {
		return 0, nil, errs.Format.Printf("response: %v", err)
	}
	fields := st.GetFields()
	seq, ok := fields["seq"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, nil, errs.Format.Print("response seq")
	}
	code, ok := fields["code"].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, nil, errs.Format.Print("response code")
	}
	rsp := &host.Response{Code: host.ResponseCode(code.NumberValue)}
	if v, ok := fields["data"]; ok {
		data := v.GetStringValue()
		rsp.Data = &data
	}
	rsp.Error = fields["error"].GetStringValue()
	rsp.ErrCode = int32(fields["ecode"].GetNumberValue())
	return uint32(seq.NumberValue), rsp, nil
}
