package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/openharvest/harvestd/internal/domain"
)

// Minimal ABIs: only the functions this backend calls through the forwarder
// plus the view methods the dashboards read. The contracts themselves are
// external collaborators; their on-chain logic is authoritative.

const forwarderABIJSON = `[
  {"type":"function","name":"nonces","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

const marketplaceABIJSON = `[
  {"type":"function","name":"createListing","stateMutability":"nonpayable",
   "inputs":[{"name":"metadataCID","type":"string"},{"name":"unitPrice","type":"uint256"},{"name":"quantity","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"registerSeller","stateMutability":"nonpayable",
   "inputs":[{"name":"profileCID","type":"string"}],"outputs":[]},
  {"type":"function","name":"delistListing","stateMutability":"nonpayable",
   "inputs":[{"name":"listingId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"createOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"listingId","type":"uint256"},{"name":"quantity","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"acceptOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"shipOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"completeOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelOrder","stateMutability":"nonpayable",
   "inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getListing","stateMutability":"view",
   "inputs":[{"name":"listingId","type":"uint256"}],
   "outputs":[{"name":"seller","type":"address"},{"name":"metadataCID","type":"string"},
              {"name":"unitPrice","type":"uint256"},{"name":"quantity","type":"uint256"},
              {"name":"status","type":"uint8"}]},
  {"type":"function","name":"getOrder","stateMutability":"view",
   "inputs":[{"name":"orderId","type":"uint256"}],
   "outputs":[{"name":"listingId","type":"uint256"},{"name":"buyer","type":"address"},
              {"name":"seller","type":"address"},{"name":"quantity","type":"uint256"},
              {"name":"total","type":"uint256"},{"name":"status","type":"uint8"}]},
  {"type":"function","name":"listingCount","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"orderCount","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"sellerOf","stateMutability":"view",
   "inputs":[{"name":"listingId","type":"uint256"}],
   "outputs":[{"name":"","type":"address"}]}
]`

const ambassadorRewardsABIJSON = `[
  {"type":"function","name":"claimRewards","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"castVote","stateMutability":"nonpayable",
   "inputs":[{"name":"proposalId","type":"uint256"},{"name":"support","type":"bool"}],"outputs":[]}
]`

const disputeResolutionABIJSON = `[
  {"type":"function","name":"raiseDispute","stateMutability":"nonpayable",
   "inputs":[{"name":"orderId","type":"uint256"},{"name":"reasonCID","type":"string"}],"outputs":[]},
  {"type":"function","name":"resolveDispute","stateMutability":"nonpayable",
   "inputs":[{"name":"disputeId","type":"uint256"},{"name":"outcome","type":"uint8"}],"outputs":[]}
]`

const governmentRequestsABIJSON = `[
  {"type":"function","name":"submitRequest","stateMutability":"nonpayable",
   "inputs":[{"name":"detailsCID","type":"string"}],"outputs":[]},
  {"type":"function","name":"approveRequest","stateMutability":"nonpayable",
   "inputs":[{"name":"requestId","type":"uint256"}],"outputs":[]}
]`

// Parsed ABIs, one per relayable target plus the forwarder itself. Parsing a
// constant cannot fail, hence the panic on init.
var (
	ForwarderABI          = mustParseABI(forwarderABIJSON)
	MarketplaceABI        = mustParseABI(marketplaceABIJSON)
	AmbassadorRewardsABI  = mustParseABI(ambassadorRewardsABIJSON)
	DisputeResolutionABI  = mustParseABI(disputeResolutionABIJSON)
	GovernmentRequestsABI = mustParseABI(governmentRequestsABIJSON)
)

// TargetABIs maps each allow-listed target to its ABI.
var TargetABIs = map[domain.Target]abi.ABI{
	domain.TargetMarketplace:        MarketplaceABI,
	domain.TargetAmbassadorRewards:  AmbassadorRewardsABI,
	domain.TargetDisputeResolution:  DisputeResolutionABI,
	domain.TargetGovernmentRequests: GovernmentRequestsABI,
}

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: invalid embedded ABI: " + err.Error())
	}
	return parsed
}
