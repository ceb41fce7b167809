package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"depthbridge/domain"
	promclient "depthbridge/infrastructure/prometheus"
)

type streamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type depthUpdateData struct {
	Event             string     `json:"e"`
	EventTime         int64      `json:"E"`
	TransactionTime   int64      `json:"T"`
	Symbol            string     `json:"s"`
	FirstUpdateID     int64      `json:"U"`
	FinalUpdateID     int64      `json:"u"`
	PrevFinalUpdateID int64      `json:"pu"`
	Bids              [][]string `json:"b"`
	Asks              [][]string `json:"a"`
}

// StreamAPI turns the raw multiplexed stream into typed diff events.
// Works for both spot and futures streams; futures events carry pu and the
// maintainer picks the matching continuity rule per event.
type StreamAPI struct {
	streamClient *StreamClient
}

func NewStreamAPI(client *StreamClient) *StreamAPI {
	return &StreamAPI{streamClient: client}
}

func (api *StreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.DiffEvent], error) {
	topic := fmt.Sprintf("%s@depth@100ms", symbol.Join(""))
	sub, err := api.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	out := make(chan *domain.DiffEvent, topicChanSize)

	go func() {
		defer close(out)

		for msg := range sub.Stream {
			event, err := parseDepthUpdate(symbol, msg)
			if err != nil {
				// A dropped event is a gap; the continuity check downstream
				// forces the resync, we only record and move on.
				promclient.MalformedUpdatesTotal.WithLabelValues(symbol.String()).Inc()
				logger.Warnf("dropping malformed depth update for %s: %v", symbol.String(), err)
				continue
			}
			out <- event
		}
	}()

	return &domain.Subscription[*domain.DiffEvent]{
		Stream:      out,
		Unsubscribe: sub.Unsubscribe,
		Topic:       topic,
	}, nil
}

func parseDepthUpdate(symbol *domain.MarketSymbol, msg []byte) (*domain.DiffEvent, error) {
	var envelope streamMessage
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return nil, fmt.Errorf("decode stream envelope: %w", err)
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("stream message has no data field")
	}

	var data depthUpdateData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return nil, fmt.Errorf("decode depth update: %w", err)
	}

	if data.Event != "depthUpdate" {
		return nil, fmt.Errorf("unexpected event type %q", data.Event)
	}
	if !strings.EqualFold(data.Symbol, symbol.Join("")) {
		return nil, fmt.Errorf("event symbol %q does not match %q", data.Symbol, symbol.Exchange())
	}
	if data.FinalUpdateID < data.FirstUpdateID {
		return nil, fmt.Errorf("inverted update id range [%d, %d]", data.FirstUpdateID, data.FinalUpdateID)
	}

	bids, err := domain.ParsePriceLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := domain.ParsePriceLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}

	return &domain.DiffEvent{
		Symbol:            symbol,
		FirstUpdateID:     data.FirstUpdateID,
		FinalUpdateID:     data.FinalUpdateID,
		PrevFinalUpdateID: data.PrevFinalUpdateID,
		EventTime:         time.UnixMilli(data.EventTime),
		Bids:              bids,
		Asks:              asks,
	}, nil
}
