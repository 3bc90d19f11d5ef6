// Package markethours reports whether the venue behind an asset class is
// trading. Bars fetched while a market is closed repeat the last session, so
// operators use this to tell a quiet asset from a closed one.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/pierrenik/signalauto/internal/model"
)

// NewYork is the reference zone for US equities and the FX week.
var NewYork = mustLoad("America/New_York")

// US cash equity hours in New York time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0

	// FX trades from Sunday 17:00 to Friday 17:00 New York time.
	FXRollHour = 17
	// CME metals pause daily 17:00-18:00 and reopen Sunday 18:00.
	FuturesReopenHour = 18
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// IsOpen returns true if the market for class is trading at t.
func IsOpen(class model.AssetClass, t time.Time) bool {
	switch class {
	case model.ClassCrypto:
		return true
	case model.ClassForex:
		return fxOpen(t)
	case model.ClassCommodity:
		return futuresOpen(t)
	case model.ClassIndex, model.ClassStock:
		return IsMarketOpen(t)
	default:
		return false
	}
}

// IsMarketOpen returns true if t falls within NYSE trading hours
// (9:30 AM – 4:00 PM New York, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	ny := t.In(NewYork)
	if !IsTradingDay(ny) {
		return false
	}
	hm := ny.Hour()*60 + ny.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri in New York.
func IsWeekday(t time.Time) bool {
	wd := t.In(NewYork).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not an exchange holiday.
func IsTradingDay(t time.Time) bool {
	return IsWeekday(t) && !IsHoliday(t)
}

func fxOpen(t time.Time) bool {
	ny := t.In(NewYork)
	switch ny.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return ny.Hour() >= FXRollHour
	case time.Friday:
		return ny.Hour() < FXRollHour
	default:
		return true
	}
}

func futuresOpen(t time.Time) bool {
	ny := t.In(NewYork)
	h := ny.Hour()
	switch ny.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return h >= FuturesReopenHour
	case time.Friday:
		return h < FXRollHour
	default:
		return h < FXRollHour || h >= FuturesReopenHour
	}
}

// NextOpen returns the next US equity open (9:30 AM New York on the next
// trading day). If t is before today's open on a trading day, returns today's open.
func NextOpen(t time.Time) time.Time {
	ny := t.In(NewYork)

	// Try today first
	todayOpen := time.Date(ny.Year(), ny.Month(), ny.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
	if ny.Before(todayOpen) && IsTradingDay(ny) {
		return todayOpen
	}

	// Otherwise find the next trading day
	d := ny.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(ny.Year(), ny.Month(), ny.Day()+1, OpenHour, OpenMinute, 0, 0, NewYork)
}

// StatusString returns a human-readable session status for class.
func StatusString(class model.AssetClass, t time.Time) string {
	if IsOpen(class, t) {
		return "Market Open"
	}
	if class == model.ClassIndex || class == model.ClassStock {
		next := NextOpen(t)
		ny := next.In(NewYork)
		return fmt.Sprintf("Market Closed (opens %s %s, in %s)",
			ny.Weekday().String()[:3], ny.Format("15:04"), fmtDur(next.Sub(t)))
	}
	return "Market Closed"
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
