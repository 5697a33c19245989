package consensus

import (
	"github.com/rs/zerolog"

	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/notifications"
	"github.com/nimbuschain/nimbus-go/consensus/bft/notifications/pubsub"
)

// CreateNotifier assembles the notification fan-out for a consensus
// participant: a structured-log consumer plus any caller-provided consumers,
// typically the prometheus collector.
func CreateNotifier(log zerolog.Logger, extra ...bft.Consumer) *pubsub.Distributor {
	dis := pubsub.NewDistributor()
	dis.AddConsumer(notifications.NewLogConsumer(log))
	for _, consumer := range extra {
		dis.AddConsumer(consumer)
	}
	return dis
}
