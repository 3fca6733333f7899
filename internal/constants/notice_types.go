package constants

// Notice types pushed to the notification service for equipment moderation events
const (
	NoticeItemRequiresModeration = "equipment-item-requires-moderation"
	NoticeItemApproved           = "equipment-item-approved"
	NoticeItemAssigned           = "equipment-item-assigned"
	NoticeItemRejected           = "equipment-item-rejected"
	NoticeEditProposalCreated    = "equipment-edit-proposal-created"
	NoticeEditProposalApproved   = "equipment-edit-proposal-approved"
	NoticeEditProposalAssigned   = "equipment-edit-proposal-assigned"
	NoticeEditProposalRejected   = "equipment-edit-proposal-rejected"
)

// Async job names consumed by the worker fleet
const (
	JobRejectItem = "reject_item"
)

// JobQueueKey is the Redis list the worker fleet consumes from
const JobQueueKey = "equipment:jobs"
