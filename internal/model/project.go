package model

// Project carries the collaborator data the payment gate and the notification
// dispatcher need. Project CRUD itself lives elsewhere in the marketplace and
// is not part of this service.
type Project struct {
	ID                  int    `json:"id"`
	ContractorAccountID string `json:"contractor_account_id"` // payee connected account
	HomeownerAccountID  string `json:"homeowner_account_id"`  // payer account
	HomeownerUserID     *int   `json:"homeowner_user_id,omitempty"` // nil = no marketplace account
	HomeownerEmail      string `json:"homeowner_email"`
	ContractorUserID    int    `json:"contractor_user_id"`
	PlatformFeeBps      int    `json:"platform_fee_bps"`
}

// HomeownerHasAccount decides the notification channel: in-app when the
// homeowner holds a marketplace account, email otherwise.
func (p *Project) HomeownerHasAccount() bool {
	return p.HomeownerUserID != nil
}
