package locale

// Message key constants for localization
// All user-facing messages should use these constants to ensure consistency

const (
	BotStarted = "BotStarted"

	// General
	CooldownWait = "CooldownWait"
	AdminOnly    = "AdminOnly"

	// Help command
	HelpTitle            = "HelpTitle"
	HelpUserCommands     = "HelpUserCommands"
	HelpUploaderCommands = "HelpUploaderCommands"
	HelpAdminCommands    = "HelpAdminCommands"

	// Access keys
	KeyIssued    = "KeyIssued"
	KeyDMFailed  = "KeyDMFailed"
	RevokeUsage  = "RevokeUsage"
	RevokeNoKey  = "RevokeNoKey"
	RevokeDone   = "RevokeDone"
	RevokeNoUser = "RevokeNoUser"

	// Loader info
	VersionInfo = "VersionInfo"
	GithubLink  = "GithubLink"
	CommitsLink = "CommitsLink"

	// Verification handshake
	VerifyNeedUsername     = "VerifyNeedUsername"
	VerifyNoRequest        = "VerifyNoRequest"
	VerifyUsernameMismatch = "VerifyUsernameMismatch"
	VerifySuccess          = "VerifySuccess"
	VerifyRoleGrantFailed  = "VerifyRoleGrantFailed"

	// Wizards, shared
	WizardCancelled      = "WizardCancelled"
	WizardTimeout        = "WizardTimeout"
	WizardAlreadyRunning = "WizardAlreadyRunning"
	WizardAskGame        = "WizardAskGame"
	WizardAskGameID      = "WizardAskGameID"
	WizardGatePrompt     = "WizardGatePrompt"
	WizardGateRejected   = "WizardGateRejected"
	ButtonGateHasKey     = "ButtonGateHasKey"
	ButtonGateNoKey      = "ButtonGateNoKey"

	// Script request wizard
	RequestPrompt  = "RequestPrompt"
	RequestBlocked = "RequestBlocked"
	RequestSent    = "RequestSent"
	RequestCard    = "RequestCard"

	// Template wizard
	TemplateAskGame        = "TemplateAskGame"
	TemplateMenu           = "TemplateMenu"
	TemplateAskName        = "TemplateAskName"
	TemplateAskIcon        = "TemplateAskIcon"
	TemplateAskDescription = "TemplateAskDescription"
	TemplateAskLoad        = "TemplateAskLoad"
	TemplateSaved          = "TemplateSaved"
	TemplateEntryRemoved   = "TemplateEntryRemoved"
	TemplateLastEntry      = "TemplateLastEntry"

	// Template wizard buttons
	ButtonGoMulti         = "ButtonGoMulti"
	ButtonAddEntry        = "ButtonAddEntry"
	ButtonRemoveEntry     = "ButtonRemoveEntry"
	ButtonPrevEntry       = "ButtonPrevEntry"
	ButtonNextEntry       = "ButtonNextEntry"
	ButtonEditName        = "ButtonEditName"
	ButtonEditIcon        = "ButtonEditIcon"
	ButtonEditDescription = "ButtonEditDescription"
	ButtonEditLoad        = "ButtonEditLoad"
	ButtonPrint           = "ButtonPrint"
	ButtonSave            = "ButtonSave"
	ButtonCancel          = "ButtonCancel"

	// Upload wizard and review
	UploadNotAllowed     = "UploadNotAllowed"
	UploadAskScript      = "UploadAskScript"
	UploadBlocked        = "UploadBlocked"
	UploadSubmitted      = "UploadSubmitted"
	UploadReviewCard     = "UploadReviewCard"
	UploadPendingPublic  = "UploadPendingPublic"
	UploadVerifiedPublic = "UploadVerifiedPublic"
	UploadUnsurePublic   = "UploadUnsurePublic"
	ButtonVerify         = "ButtonVerify"
	ButtonUnsure         = "ButtonUnsure"
	ButtonDiscard        = "ButtonDiscard"
	ReviewAskReason      = "ReviewAskReason"
	ReviewResolved       = "ReviewResolved"
	UploadApproved       = "UploadApproved"
	UploadUnsure         = "UploadUnsure"
	UploadDiscarded      = "UploadDiscarded"
	WarningIssued        = "WarningIssued"
	UploaderRoleRevoked  = "UploaderRoleRevoked"

	// Tickets
	TicketCongrats   = "TicketCongrats"
	TicketRejected   = "TicketRejected"
	TicketDiscussion = "TicketDiscussion"
	ButtonAccept     = "ButtonAccept"
	RequestAccepted  = "RequestAccepted"
	RequestRejected  = "RequestRejected"

	// Saved templates
	SavesEmpty       = "SavesEmpty"
	SavesPanel       = "SavesPanel"
	SavesLoaded      = "SavesLoaded"
	SavesNotFound    = "SavesNotFound"
	ButtonLoadSave   = "ButtonLoadSave"
	ButtonDeleteSave = "ButtonDeleteSave"
	ButtonClosePanel = "ButtonClosePanel"
	ClearUsage       = "ClearUsage"
	ClearDone        = "ClearDone"

	// Moderation
	PurgeUsage = "PurgeUsage"
	PurgeDone  = "PurgeDone"
)
