package events

import (
	"bytes"
	"context"
	"fmt"

	ical "github.com/arran4/golang-ical"

	"github.com/MahdiBaghbani/calshare-go/internal/components/reminders"
)

const icsProductID = "-//calshare//calshare-go//EN"

// ExportICS renders every event of the owner as an iCalendar document. Each
// event with a positive lead time carries a display alarm.
func (w *Workflow) ExportICS(ctx context.Context, ownerID string) ([]byte, error) {
	all, err := loadEvents(ctx, w.store, ownerID)
	if err != nil {
		return nil, err
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(icsProductID)

	stamp := w.sweeper.Now().UTC()
	for _, ev := range all {
		if ev.Date.IsZero() {
			continue
		}
		vev := cal.AddEvent(ev.ID + "@calshare")
		vev.SetDtStampTime(stamp)
		vev.SetStartAt(ev.Date.UTC())
		vev.SetSummary(ev.Title)
		if ev.InvitedBy != "" {
			vev.SetDescription("Shared with you by " + ev.InvitedBy)
		}
		if ev.NotifyBefore > 0 {
			alarm := vev.AddAlarm()
			alarm.SetAction(ical.ActionDisplay)
			alarm.SetTrigger(fmt.Sprintf("-PT%dM", ev.NotifyBefore))
			alarm.SetProperty(ical.ComponentPropertyDescription, reminders.Body(ev.Title))
		}
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize calendar: %w", err)
	}
	return buf.Bytes(), nil
}
