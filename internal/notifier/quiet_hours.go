package notifier

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseClock 解析 "HH:MM"，返回当天的分钟数
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// InQuietHours 判断 now（换算到 loc 时区）是否落在 [start, end) 静默时段内
// start > end 表示跨午夜（如 22:00–07:00）；start == end 视为空时段
func InQuietHours(now time.Time, start, end string, loc *time.Location) (bool, error) {
	s, err := ParseClock(start)
	if err != nil {
		return false, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return false, err
	}
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	cur := local.Hour()*60 + local.Minute()

	switch {
	case s == e:
		return false, nil
	case s < e:
		return cur >= s && cur < e, nil
	default:
		return cur >= s || cur < e, nil
	}
}
