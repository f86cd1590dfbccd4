package rest

import "time"

// Agent types

// AgentStatus is the liveness of an agent as reported by the platform.
type AgentStatus string

const (
	AgentStatusActive  AgentStatus = "active"
	AgentStatusIdle    AgentStatus = "idle"
	AgentStatusOffline AgentStatus = "offline"
)

// AgentCategory groups agents by what they do.
type AgentCategory string

const (
	CategoryTrading   AgentCategory = "trading"
	CategoryResearch  AgentCategory = "research"
	CategoryAnalytics AgentCategory = "analytics"
	CategorySocial    AgentCategory = "social"
	CategoryDeFi      AgentCategory = "defi"
	CategoryNFT       AgentCategory = "nft"
)

// All matches every category or status in a filter.
const All = "all"

// Agent represents a deployed agent.
type Agent struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Ticker          string        `json:"ticker"`
	Avatar          string        `json:"avatar"`
	Description     string        `json:"description"`
	TokenPrice      float64       `json:"tokenPrice"`
	PriceChange24h  float64       `json:"priceChange24h"`
	CycleCount      int           `json:"cycleCount"`
	WalletBalance   float64       `json:"walletBalance"`
	WalletAddress   string        `json:"walletAddress,omitempty"`
	Status          AgentStatus   `json:"status"`
	Category        AgentCategory `json:"category"`
	SpawnDate       string        `json:"spawnDate,omitempty"`
	DeployerAddress string        `json:"deployerAddress,omitempty"`
	TokenAddress    string        `json:"tokenAddress,omitempty"`
	RepoURL         string        `json:"repoUrl,omitempty"`
	Streak          int           `json:"streak,omitempty"`
	HoldersCount    int           `json:"holdersCount,omitempty"`
}

// AgentFilters narrows ListAgents. Empty fields and All are ignored.
type AgentFilters struct {
	Category string
	Status   string
	Search   string
}

// SortField orders ListAgents results.
type SortField string

const (
	SortNewest        SortField = "newest"
	SortMostActive    SortField = "most-active"
	SortHighestVolume SortField = "highest-volume"
	SortPriceChange   SortField = "price-change"
)

// AgentSort orders ListAgents. The zero value leaves ordering to the server.
type AgentSort struct {
	Field     SortField
	Direction string // "asc" or "desc"
}

// Heartbeat types

// HeartbeatStatus is the outcome of one agent cycle.
type HeartbeatStatus string

const (
	HeartbeatSuccess  HeartbeatStatus = "success"
	HeartbeatNoAction HeartbeatStatus = "no_action"
	HeartbeatError    HeartbeatStatus = "error"
)

// Heartbeat is one recorded agent cycle.
type Heartbeat struct {
	ID          string          `json:"id"`
	CycleNumber int             `json:"cycleNumber"`
	Timestamp   time.Time       `json:"timestamp"`
	Action      string          `json:"action"`
	Status      HeartbeatStatus `json:"status"`
}

// Skill types

// Skill is a capability that can be installed on an agent.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Description string   `json:"description,omitempty"`
	Tools       []string `json:"tools,omitempty"`
	Installs    int      `json:"installs,omitempty"`
	Author      string   `json:"author,omitempty"`
	Version     string   `json:"version,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// Wallet and spawn types

// WalletInfo describes an agent's on-chain wallet.
type WalletInfo struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"` // ETH
	Chain   string  `json:"chain"`
}

// SpawnRequest is the request body for deploying a new agent.
type SpawnRequest struct {
	Name            string `json:"name"`
	Ticker          string `json:"ticker"`
	Description     string `json:"description"`
	Personality     string `json:"personality"`
	Avatar          string `json:"avatar,omitempty"`
	DeployerAddress string `json:"deployerAddress"`
	GithubUsername  string `json:"githubUsername"`
}

// SpawnResponse is returned once an agent has been deployed.
type SpawnResponse struct {
	Agent        Agent  `json:"agent"`
	RepoURL      string `json:"repoUrl"`
	TokenAddress string `json:"tokenAddress"`
	TxHash       string `json:"txHash"`
}

// ErrorResponse is the body the API returns on failure.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
