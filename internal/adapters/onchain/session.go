package onchain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/ctfdesk/internal/ports"
)

// Addresses are the network's fixed contracts.
type Addresses struct {
	ConditionalTokens common.Address
	Collateral        common.Address
	Oracle            common.Address
	Adapter           common.Address
	OptimisticOracle  common.Address
	RewardToken       common.Address
}

// Session binds a gateway to one account and caches typed contract handles.
// It is passed explicitly to the components that need ledger access; a
// change of account goes through WithAccount, which starts from an empty
// cache.
type Session struct {
	gw      *Gateway
	addrs   Addresses
	account common.Address

	mu   sync.Mutex
	amms map[common.Address]*MarketMaker
}

// NewSession builds a session for account. When the gateway has a signer,
// its address wins over account.
func NewSession(gw *Gateway, addrs Addresses, account common.Address) *Session {
	if signer, ok := gw.Signer(); ok {
		account = signer
	}
	return &Session{
		gw:      gw,
		addrs:   addrs,
		account: account,
		amms:    make(map[common.Address]*MarketMaker),
	}
}

// WithAccount returns a session for another read account. Writes are still
// signed by the gateway key, so this is only meaningful in watch-only mode.
func (s *Session) WithAccount(account common.Address) *Session {
	return &Session{
		gw:      s.gw,
		addrs:   s.addrs,
		account: account,
		amms:    make(map[common.Address]*MarketMaker),
	}
}

func (s *Session) Account() common.Address { return s.account }

// CanSign reports whether writes can be submitted.
func (s *Session) CanSign() bool {
	_, ok := s.gw.Signer()
	return ok
}

func (s *Session) MarketMaker(address common.Address) ports.MarketMaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.amms[address]; ok {
		return m
	}
	m := NewMarketMaker(s.gw, address)
	s.amms[address] = m
	return m
}

func (s *Session) ConditionalTokens() ports.ConditionalTokens {
	return NewConditionalTokens(s.gw, s.addrs.ConditionalTokens)
}

func (s *Session) Collateral() ports.Collateral {
	return NewToken(s.gw, s.addrs.Collateral)
}

func (s *Session) RewardToken() ports.Token {
	return NewToken(s.gw, s.addrs.RewardToken)
}

func (s *Session) Adapter() ports.OracleAdapter {
	return NewOracleAdapter(s.gw, s.addrs.Adapter)
}

func (s *Session) OptimisticOracle() ports.OptimisticOracle {
	return NewOptimisticOracle(s.gw, s.addrs.OptimisticOracle)
}

func (s *Session) Wallet() ports.Wallet {
	return NewWallet(s.gw, s.account)
}

func (s *Session) Chain() ports.Chain { return s.gw }
