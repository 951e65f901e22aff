package errs

const (
	ErrCode_OK         = 0
	ErrCode_Unknown    = 1
	ErrCode_Format     = 2 // 数值参数无法解析
	ErrCode_Args       = 3 // 参数个数不匹配
	ErrCode_UnknownOp  = 4
	ErrCode_InvalidArg = 5 // 参数可解析但取值非法
	ErrCode_Closed     = 6
)

var (
	Unknown    = CreateCodeError(ErrCode_Unknown, "UNKNOWN")
	Format     = CreateCodeError(ErrCode_Format, "FORMAT")
	Args       = CreateCodeError(ErrCode_Args, "ARGS")
	UnknownOp  = CreateCodeError(ErrCode_UnknownOp, "UNKNOWN_OP")
	InvalidArg = CreateCodeError(ErrCode_InvalidArg, "INVALID_ARG")
	Closed     = CreateCodeError(ErrCode_Closed, "CLOSED")
)
