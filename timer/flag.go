package timer

import "strings"

// Flag 定时器行为位集合, 位布局与宿主约定一致
type Flag uint32

const (
	Unique     Flag = 1 << iota // 同key覆盖时继承旧id
	Override                    // 允许同key覆盖
	RealTime                    // 墙上时钟计时
	Stoppable                   // 允许取消
	NoHashWait                  // 保留位
	Loop                        // 触发后自动续期

	flagMask = Unique | Override | RealTime | Stoppable | NoHashWait | Loop
)

var flagNames = []struct {
	f    Flag
	name string
}{
	{Unique, "unique"},
	{Override, "override"},
	{RealTime, "realtime"},
	{Stoppable, "stoppable"},
	{NoHashWait, "nohashwait"},
	{Loop, "loop"},
}

func (f Flag) Has(x Flag) bool {
	return f&x == x
}

func (f Flag) Valid() bool {
	return f&^flagMask == 0
}

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range flagNames {
		if f.Has(n.f) {
			parts = append(parts, n.name)
		}
	}
	if !f.Valid() {
		parts = append(parts, "invalid")
	}
	return strings.Join(parts, "|")
}
