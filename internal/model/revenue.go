package model

// Transaction is one sale from a user's transaction history.
type Transaction struct {
	ID        int64  `json:"id"`
	Created   string `json:"created"`
	Pending   bool   `json:"isPending"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	AgentID   int64  `json:"agentId"`
	AgentName string `json:"agentName"`
	AssetID   int64  `json:"assetId"`
	AssetName string `json:"assetName"`
}

// RevenuePage is one page of a user's sales.
// Error is set to "auth_required" when the session is missing or rejected.
type RevenuePage struct {
	UserID       int64         `json:"userId"`
	Page         int           `json:"page"`
	PerPage      int           `json:"perPage"`
	Transactions []Transaction `json:"transactions"`
	PageTotal    int64         `json:"pageTotal"`
	HasNext      bool          `json:"hasNext"`
	Error        string        `json:"error,omitempty"`
}
