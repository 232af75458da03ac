package pdf

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	appconfig "github.com/smallbiznis/servicepoint/internal/config"
)

const dateLayout = "Jan 2, 2006 15:04 MST"

// ReceiptRenderer draws booking receipts with maroto.
type ReceiptRenderer struct {
	issuer      string
	checkoutCfg *appconfig.CheckoutConfigHolder
}

func NewReceiptRenderer(cfg appconfig.Config, checkoutCfg *appconfig.CheckoutConfigHolder) bookingdomain.ReceiptRenderer {
	issuer := strings.TrimSpace(cfg.AppName)
	if issuer == "" {
		issuer = "servicepoint"
	}
	return &ReceiptRenderer{issuer: issuer, checkoutCfg: checkoutCfg}
}

func (r *ReceiptRenderer) RenderBookingReceipt(ctx context.Context, booking bookingdomain.Booking, serviceName, providerName string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if booking.PaymentStatus != bookingdomain.PaymentCompleted || booking.PaidAt == nil {
		return nil, bookingdomain.ErrReceiptUnavailable
	}

	currency := strings.ToUpper(r.checkoutCfg.Get().Currency)
	amount := booking.ChargeAmount().StringFixedBank(2)

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, r.issuer, props.Text{
			Size:  10,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Booking: "+booking.ID.String(), props.Text{Top: 0}),
			text.New("Date paid: "+formatTime(booking.PaidAt), props.Text{Top: 4}),
			text.New("Scheduled for: "+booking.ServiceDateTime.UTC().Format(dateLayout), props.Text{Top: 8}),
			text.New("Payment reference: "+deref(booking.PaymentIntentID), props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Provider", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(providerName, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, fmt.Sprintf("%s %s paid on %s", currency, amount, formatTime(booking.PaidAt)), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	qty := "1"
	if booking.PricingTypeAtBooking == bookingdomain.PricingHourly && booking.Hours.Valid {
		qty = booking.Hours.Decimal.String() + " h"
	}
	m.AddRow(15,
		text.NewCol(6, "Booking with "+providerName+": "+serviceName, props.Text{Size: 9}),
		text.NewCol(2, qty, props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, booking.PriceAtBooking.StringFixedBank(2), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, amount, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, currency+" "+amount, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
