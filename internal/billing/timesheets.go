package billing

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tallybook.io/internal/document"
	"tallybook.io/internal/mail"
	"tallybook.io/internal/obs"
)

const dateLayout = "2006-01-02"

// Charge is a timesheet as listed inside a day of a charge summary.
type Charge struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Invoiced    bool      `json:"invoiced"`
	Duration    string    `json:"duration"`
}

type DayCharge struct {
	Date       string   `json:"date"`
	Duration   string   `json:"duration"`
	Pct        int64    `json:"pct"`
	Invoiced   bool     `json:"invoiced"`
	Timesheets []Charge `json:"timesheets"`
}

// ChargeSummary is a requester's time on a work order, day by day.
type ChargeSummary struct {
	TotalDuration        string          `json:"total_duration"`
	TotalDurationNumeric decimal.Decimal `json:"total_duration_numeric"`
	Details              []DayCharge     `json:"details"`
}

type DayStatus struct {
	Date       string `json:"date"`
	IsInvoiced bool   `json:"isInvoiced"`
	IsCharged  bool   `json:"isCharged"`
}

// MonthStatistics is a calendar of charged and invoiced days for one month.
type MonthStatistics struct {
	Detail   []DayStatus `json:"detail"`
	Invoiced string      `json:"invoiced"`
	Charged  string      `json:"charged"`
}

// ReportRequest selects the time charges of a timesheet report.
type ReportRequest struct {
	WorkOrderID string
	Start       time.Time
	End         time.Time
}

type SendReportRequest struct {
	ReportRequest
	To []string
	CC []string
}

// Summary lists userID's time on the work order for every day in [start, end].
// Days without charges count as invoiced when they precede the work order or
// the cut-off date.
func (s *WorkOrders) Summary(ctx context.Context, workOrderID, userID string, start, end time.Time) (ChargeSummary, error) {
	wo, err := s.store.GetWorkOrder(ctx, workOrderID)
	if err != nil {
		return ChargeSummary{}, reference(err, "Invalid Work-Order id")
	}
	if start.IsZero() || end.IsZero() || start.After(end) {
		return ChargeSummary{}, fmt.Errorf("%w: start_date and end_date are required and ordered", ErrInvalidInput)
	}
	sheets, err := s.store.ListTimesheets(ctx, TimesheetFilter{
		WorkOrderID: workOrderID,
		ChargedByID: userID,
		From:        start,
		To:          end,
	})
	if err != nil {
		return ChargeSummary{}, err
	}

	byDay := map[string][]Timesheet{}
	perDay := map[string]time.Duration{}
	var total, longest time.Duration
	for _, ts := range sheets {
		day := ts.StartTime.Format(dateLayout)
		byDay[day] = append(byDay[day], ts)
		perDay[day] += ts.Duration()
		total += ts.Duration()
	}
	for _, d := range perDay {
		if d > longest {
			longest = d
		}
	}

	woStart := startOfDay(wo.StartDate)
	cutOff := startOfDay(s.cutOff)
	out := ChargeSummary{
		TotalDuration:        FormatDuration(total),
		TotalDurationNumeric: Hours(total),
		Details:              []DayCharge{},
	}
	for day := startOfDay(start); !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format(dateLayout)
		charged, ok := byDay[key]
		if !ok {
			out.Details = append(out.Details, DayCharge{
				Date:       key,
				Duration:   FormatDuration(0),
				Invoiced:   day.Before(woStart) || day.Before(cutOff),
				Timesheets: []Charge{},
			})
			continue
		}
		dc := DayCharge{Date: key, Duration: FormatDuration(perDay[key]), Invoiced: true}
		if longest > 0 {
			dc.Pct = int64(math.Round(float64(perDay[key]) / float64(longest) * 100))
		}
		for _, ts := range charged {
			dc.Invoiced = dc.Invoiced && ts.Invoiced
			dc.Timesheets = append(dc.Timesheets, Charge{
				ID:          ts.ID,
				Description: ts.Description,
				StartTime:   ts.StartTime,
				EndTime:     ts.EndTime,
				Invoiced:    ts.Invoiced,
				Duration:    FormatDuration(ts.Duration()),
			})
		}
		out.Details = append(out.Details, dc)
	}
	return out, nil
}

// Statistics reports, for the month containing date, which days userID charged
// time on and whether all of that day's time is invoiced.
func (s *WorkOrders) Statistics(ctx context.Context, workOrderID, userID string, date time.Time) (MonthStatistics, error) {
	if _, err := s.store.GetWorkOrder(ctx, workOrderID); err != nil {
		return MonthStatistics{}, reference(err, "Invalid Work-Order id")
	}
	if date.IsZero() {
		date = s.now()
	}
	first := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, date.Location())
	last := endOfDay(first.AddDate(0, 1, -1))
	sheets, err := s.store.ListTimesheets(ctx, TimesheetFilter{
		WorkOrderID: workOrderID,
		ChargedByID: userID,
		From:        first,
	})
	if err != nil {
		return MonthStatistics{}, err
	}

	type dayState struct{ charged, invoiced bool }
	days := map[string]*dayState{}
	var charged, invoiced time.Duration
	for _, ts := range sheets {
		if ts.StartTime.After(last) {
			continue
		}
		key := ts.StartTime.Format(dateLayout)
		st, ok := days[key]
		if !ok {
			st = &dayState{charged: true, invoiced: true}
			days[key] = st
		}
		st.invoiced = st.invoiced && ts.Invoiced
		charged += ts.Duration()
		if ts.Invoiced {
			invoiced += ts.Duration()
		}
	}

	out := MonthStatistics{Invoiced: FormatDuration(invoiced), Charged: FormatDuration(charged)}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		ds := DayStatus{Date: day.Format("2006-01-02T15:04:05")}
		if st, ok := days[day.Format(dateLayout)]; ok {
			ds.IsCharged = true
			ds.IsInvoiced = st.invoiced
		}
		out.Detail = append(out.Detail, ds)
	}
	return out, nil
}

// Report renders the timesheet PDF of a work order for a period.
func (s *WorkOrders) Report(ctx context.Context, req ReportRequest) ([]byte, error) {
	report, err := s.buildReport(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.renderer.RenderTimesheet(report)
}

// SendReport mails the timesheet PDF. The requester is always copied.
func (s *WorkOrders) SendReport(ctx context.Context, req SendReportRequest, requesterEmail string) error {
	report, err := s.buildReport(ctx, req.ReportRequest)
	if err != nil {
		return err
	}
	pdf, err := s.renderer.RenderTimesheet(report)
	if err != nil {
		return err
	}
	period := fmt.Sprintf("%s - %s", req.Start.Format("02/01/2006"), req.End.Format("02/01/2006"))
	msg := mail.Message{
		To:      req.To,
		CC:      withRecipient(req.CC, requesterEmail),
		Subject: fmt.Sprintf("Monthly Timesheet (%s)", period),
		Body: fmt.Sprintf("Please find attached the timesheet for %s covering %s.\nTotal time charged: %s\n",
			report.WorkOrder, report.Period(), report.Total),
		Attachments: []mail.Attachment{{Filename: "timesheet.pdf", ContentType: "application/pdf", Data: pdf}},
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		obs.FromContext(ctx).WithError(err).WithField("work_order_id", req.WorkOrderID).Error("timesheet delivery failed")
		return fmt.Errorf("%w: Failed to send timesheet", ErrShareFailed)
	}
	return nil
}

func (s *WorkOrders) buildReport(ctx context.Context, req ReportRequest) (document.Timesheet, error) {
	wo, err := s.store.GetWorkOrder(ctx, req.WorkOrderID)
	if err != nil {
		return document.Timesheet{}, reference(err, "Invalid Work-Order id")
	}
	if req.Start.IsZero() || req.End.IsZero() || req.Start.After(req.End) {
		return document.Timesheet{}, fmt.Errorf("%w: The start date cannot be greater than end date", ErrInvalidInput)
	}
	client, err := s.store.GetClient(ctx, wo.ClientID)
	if err != nil {
		return document.Timesheet{}, err
	}
	sheets, err := s.store.ListTimesheets(ctx, TimesheetFilter{WorkOrderID: wo.ID, From: req.Start, To: req.End})
	if err != nil {
		return document.Timesheet{}, err
	}
	if len(sheets) == 0 {
		return document.Timesheet{}, fmt.Errorf("%w: No time charges found", ErrInvalidInput)
	}
	return timesheetReport(wo, client, sheets, req.Start, req.End), nil
}

// timesheetReport lays charged time out in ISO weeks. Each day lists up to four
// distinct descriptions, longest first.
func timesheetReport(wo WorkOrder, client Client, sheets []Timesheet, start, end time.Time) document.Timesheet {
	sort.SliceStable(sheets, func(i, j int) bool {
		if !sheets[i].StartTime.Equal(sheets[j].StartTime) {
			return sheets[i].StartTime.Before(sheets[j].StartTime)
		}
		return sheets[i].Duration() > sheets[j].Duration()
	})
	byDay := map[string][]Timesheet{}
	for _, ts := range sheets {
		key := ts.StartTime.Format(dateLayout)
		byDay[key] = append(byDay[key], ts)
	}

	out := document.Timesheet{
		WorkOrder:   strings.TrimSpace(wo.Description),
		Client:      client.Name,
		PeriodStart: startOfDay(start),
		PeriodEnd:   startOfDay(end),
	}
	var total, weekTotal time.Duration
	var week *document.TimesheetWeek
	for day := startOfDay(start); !day.After(end); day = day.AddDate(0, 0, 1) {
		_, isoWeek := day.ISOWeek()
		if week == nil || week.Week != isoWeek {
			if week != nil {
				week.Total = FormatDuration(weekTotal)
				out.Weeks = append(out.Weeks, *week)
			}
			week = &document.TimesheetWeek{Week: isoWeek}
			weekTotal = 0
		}
		charged := byDay[day.Format(dateLayout)]
		var spent time.Duration
		for _, ts := range charged {
			spent += ts.Duration()
		}
		week.Days = append(week.Days, document.TimesheetDay{
			Date:         day,
			Duration:     FormatDuration(spent),
			Descriptions: topDescriptions(charged, 4),
		})
		weekTotal += spent
		total += spent
	}
	if week != nil {
		week.Total = FormatDuration(weekTotal)
		out.Weeks = append(out.Weeks, *week)
	}
	out.Total = FormatDuration(total)
	return out
}

func topDescriptions(sheets []Timesheet, n int) []string {
	ranked := append([]Timesheet(nil), sheets...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Duration() > ranked[j].Duration() })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	var out []string
	seen := map[string]bool{}
	for _, ts := range ranked {
		if !seen[ts.Description] {
			seen[ts.Description] = true
			out = append(out, ts.Description)
		}
	}
	return out
}

// withRecipient appends addr unless it is already present, ignoring case.
func withRecipient(list []string, addr string) []string {
	addr = strings.TrimSpace(addr)
	out := append([]string(nil), list...)
	if addr == "" {
		return out
	}
	for _, a := range out {
		if strings.EqualFold(strings.TrimSpace(a), addr) {
			return out
		}
	}
	return append(out, addr)
}
