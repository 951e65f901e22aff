package host

import (
	"math"
	"strconv"
	"strings"

	"github.com/fixkme/timerd/errs"
	"github.com/fixkme/timerd/timer"
)

type opDef struct {
	name    string
	aliases []string
	nargs   int
	handle  Handler
}

var builtinOps = []opDef{
	{name: "status", nargs: 0, handle: opStatus},
	{name: "fire", aliases: []string{"dispatch"}, nargs: 1, handle: opFire},
	{name: "report_incomplete", aliases: []string{"recover-incomplete"}, nargs: 1, handle: opReportIncomplete},
	{name: "create", nargs: 7, handle: opCreate},
	{name: "delete_by_id", aliases: []string{"cancel-by-identity"}, nargs: 1, handle: opDeleteByID},
	{name: "delete_by_hash", aliases: []string{"cancel-by-key"}, nargs: 1, handle: opDeleteByHash},
	{name: "time_left", aliases: []string{"remaining-time"}, nargs: 2, handle: opTimeLeft},
	{name: "invoke_now", aliases: []string{"invoke-now"}, nargs: 1, handle: opInvokeNow},
}

func opStatus(s *timer.Scheduler, _ []string) (string, bool, error) {
	return s.Status(), true, nil
}

func opFire(s *timer.Scheduler, args []string) (string, bool, error) {
	now, err := parseFloat(args[0], "world time")
	if err != nil {
		return "", false, err
	}
	out := s.Dispatch(now)
	if len(out) == 0 {
		return "", false, nil
	}
	return FormatBatch(out), true, nil
}

func opReportIncomplete(s *timer.Scheduler, args []string) (string, bool, error) {
	id, err := parseID(args[0])
	if err != nil {
		return "", false, err
	}
	s.Recover(id)
	return "", false, nil
}

func opCreate(s *timer.Scheduler, args []string) (string, bool, error) {
	due, err := parseFloat(args[2], "due")
	if err != nil {
		return "", false, err
	}
	interval, err := parseFloat(args[3], "interval")
	if err != nil {
		return "", false, err
	}
	flags, err := parseFlags(args[6])
	if err != nil {
		return "", false, err
	}
	id, ok, err := s.Create(timer.CreateRequest{
		Key:      args[0],
		Callback: args[1],
		Due:      due,
		Interval: interval,
		Source:   args[4],
		Name:     args[5],
		Flags:    flags,
	})
	if err != nil || !ok {
		return "", false, err
	}
	return formatID(id), true, nil
}

func opDeleteByID(s *timer.Scheduler, args []string) (string, bool, error) {
	id, err := parseID(args[0])
	if err != nil {
		return "", false, err
	}
	return idResult(s.Cancel(id))
}

func opDeleteByHash(s *timer.Scheduler, args []string) (string, bool, error) {
	return idResult(s.CancelByKey(args[0]))
}

func opTimeLeft(s *timer.Scheduler, args []string) (string, bool, error) {
	now, err := parseFloat(args[0], "world time")
	if err != nil {
		return "", false, err
	}
	id, err := parseID(args[1])
	if err != nil {
		return "", false, err
	}
	left, ok := s.Remaining(now, id)
	if !ok {
		return "", false, nil
	}
	return FormatFloat(left), true, nil
}

func opInvokeNow(s *timer.Scheduler, args []string) (string, bool, error) {
	id, err := parseID(args[0])
	if err != nil {
		return "", false, err
	}
	return idResult(s.Invoke(id))
}

func idResult(id uint64, ok bool) (string, bool, error) {
	if !ok {
		return "", false, nil
	}
	return formatID(id), true, nil
}

// FormatBatch 派发结果: id用;连接, 已续期的循环定时器前面加-
func FormatBatch(batch []timer.Dispatched) string {
	var sb strings.Builder
	for i, d := range batch {
		if i > 0 {
			sb.WriteByte(';')
		}
		if d.Looping {
			sb.WriteByte('-')
		}
		sb.WriteString(formatID(d.ID))
	}
	return sb.String()
}

// ParseBatch FormatBatch的逆操作, 客户端用
func ParseBatch(s string) ([]timer.Dispatched, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	out := make([]timer.Dispatched, 0, len(parts))
	for _, p := range parts {
		looping := strings.HasPrefix(p, "-")
		id, err := parseID(strings.TrimPrefix(p, "-"))
		if err != nil {
			return nil, err
		}
		out = append(out, timer.Dispatched{ID: id, Looping: looping})
	}
	return out, nil
}

// FormatFloat 最短表示, 整数不带小数点
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errs.Format.Printf("identity %q", s)
	}
	return id, nil
}

func parseFloat(s, what string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0, errs.Format.Printf("%s %q", what, s)
	}
	return v, nil
}

func parseFlags(s string) (timer.Flag, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, errs.Format.Printf("flags %q", s)
	}
	if v < 0 || v > math.MaxUint32 {
		return 0, errs.InvalidArg.Printf("flags %d", v)
	}
	return timer.Flag(v), nil
}
