package auction

import (
	"log/slog"

	"github.com/spotlightworks/spotlight/spotlight/database/models"
)

// Notifier is the explicit interface between the engine and whatever
// informs users about auction activity. The engine publishes after commit
// and never depends on a UI-side event mechanism.
type Notifier interface {
	BidPlaced(position *models.AuctionPosition, bid *models.Bid)
	Outbid(position *models.AuctionPosition, previous, current *models.Bid)
	PositionClosed(position *models.AuctionPosition, winner *models.Bid)
}

// LogNotifier writes auction events to the log; deployments without a
// delivery channel use it as the default sink.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) BidPlaced(position *models.AuctionPosition, bid *models.Bid) {
	slog.Info("Bid placed",
		slog.Int64("position_id", position.ID),
		slog.Int("position", position.Position),
		slog.String("bidder_id", bid.BidderID),
		slog.Int64("amount", bid.Amount))
}

func (n *LogNotifier) Outbid(position *models.AuctionPosition, previous, current *models.Bid) {
	slog.Info("Bidder outbid",
		slog.Int64("position_id", position.ID),
		slog.Int("position", position.Position),
		slog.String("outbid_bidder_id", previous.BidderID),
		slog.String("new_bidder_id", current.BidderID),
		slog.Int64("amount", current.Amount))
}

func (n *LogNotifier) PositionClosed(position *models.AuctionPosition, winner *models.Bid) {
	if winner == nil {
		slog.Info("Position closed without bids",
			slog.Int64("position_id", position.ID),
			slog.Int("position", position.Position))
		return
	}
	slog.Info("Position closed",
		slog.Int64("position_id", position.ID),
		slog.Int("position", position.Position),
		slog.String("winner_id", winner.BidderID),
		slog.String("subject_id", winner.SubjectID),
		slog.Int64("final_amount", winner.Amount))
}
