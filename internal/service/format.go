package service

import (
	"fmt"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// formatPostTime renders community timestamps as "MM/DD HH:mm" in Korean time.
func formatPostTime(t time.Time) string {
	return t.In(kst).Format("01/02 15:04")
}

func formatHistoryDate(t time.Time) string {
	k := t.In(kst)
	return fmt.Sprintf("%d년 %d월 %d일", k.Year(), int(k.Month()), k.Day())
}

func formatHistoryTime(t time.Time) string {
	k := t.In(kst)
	period := "오전"
	if k.Hour() >= 12 {
		period = "오후"
	}
	hour := k.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%s %d시 %02d분", period, hour, k.Minute())
}
