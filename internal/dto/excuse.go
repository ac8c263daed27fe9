package dto

// SubmitExcuseRequest files an excuse for a round.
type SubmitExcuseRequest struct {
	RoundID string `json:"roundId" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
}

// ReviewExcuseRequest captures the reviewer decision.
type ReviewExcuseRequest struct {
	Approve bool `json:"approve"`
}
