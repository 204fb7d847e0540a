package events

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

// Emitter publishes deduplicated donation events for downstream consumers
// (alert overlays, leaderboards).
type Emitter interface {
	EmitDonation(ev TransferEvent) error
	Close()
}

// DonationNotification is the published payload. AmountDisplay renders the
// minor-unit amount in whole asset units for consumers that show it directly.
type DonationNotification struct {
	Type          string        `json:"type"`
	Data          TransferEvent `json:"data"`
	AmountDisplay string        `json:"amountDisplay"`
	Timestamp     int64         `json:"timestamp"`
}

type natsEmitter struct {
	nc            *nats.Conn
	subjectPrefix string
	coinDecimals  int32
}

func NewNATSEmitter(nc *nats.Conn, subjectPrefix string, coinDecimals int32) Emitter {
	return &natsEmitter{
		nc:            nc,
		subjectPrefix: subjectPrefix,
		coinDecimals:  coinDecimals,
	}
}

func (e *natsEmitter) EmitDonation(ev TransferEvent) error {
	display := decimal.NewFromBigInt(new(big.Int).SetUint64(ev.AmountMinorUnits), -e.coinDecimals)

	payload := DonationNotification{
		Type:          "donation",
		Data:          ev,
		AmountDisplay: display.String(),
		Timestamp:     time.Now().UTC().Unix(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return e.nc.Publish(e.subjectPrefix+".events", data)
}

func (e *natsEmitter) Close() {}
