package commitrule

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft"
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

// ForPolicy returns the commit rule matching the epoch's commit policy.
// Returns model.ConfigurationError for an unknown policy.
func ForPolicy(policy nimbus.CommitPolicy) (bft.CommitRule, error) {
	switch policy {
	case nimbus.CommitPolicyThreeChain:
		return NewThreeChain(), nil
	case nimbus.CommitPolicyTwoChain:
		return NewTwoChain(), nil
	default:
		return nil, model.NewConfigurationErrorf("unknown commit policy %q", policy)
	}
}
