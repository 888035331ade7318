package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/crew-bid-api/internal/models"
	appErrors "github.com/noah-isme/crew-bid-api/pkg/errors"
)

const monthLayout = "2006-01"

// bidPeriod is the calendar month being scheduled.
type bidPeriod struct {
	Month       string
	Start       time.Time
	End         time.Time
	Days        int
	WeekendDays int
}

func parseBidPeriod(month string) (bidPeriod, error) {
	start, err := time.ParseInLocation(monthLayout, month, time.UTC)
	if err != nil {
		return bidPeriod{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("month %q must use YYYY-MM", month))
	}
	end := start.AddDate(0, 1, 0)
	period := bidPeriod{Month: month, Start: start, End: end}
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		period.Days++
		if models.IsWeekend(d) {
			period.WeekendDays++
		}
	}
	return period, nil
}

// Contains reports whether the pairing reports inside the period.
func (p bidPeriod) Contains(pairing models.TripPairing) bool {
	report := pairing.ReportAt.UTC()
	return !report.Before(p.Start) && report.Before(p.End)
}
