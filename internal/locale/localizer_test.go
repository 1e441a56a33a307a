package locale

import (
	"strings"
	"testing"
)

var allKeys = []string{
	BotStarted,
	CooldownWait, AdminOnly,
	HelpTitle, HelpUserCommands, HelpUploaderCommands, HelpAdminCommands,
	KeyIssued, KeyDMFailed, RevokeUsage, RevokeNoKey, RevokeDone, RevokeNoUser,
	VersionInfo, GithubLink, CommitsLink,
	VerifyNeedUsername, VerifyNoRequest, VerifyUsernameMismatch, VerifySuccess, VerifyRoleGrantFailed,
	WizardCancelled, WizardTimeout, WizardAlreadyRunning,
	WizardAskGame, WizardAskGameID, WizardGatePrompt, WizardGateRejected,
	ButtonGateHasKey, ButtonGateNoKey,
	RequestPrompt, RequestBlocked, RequestSent, RequestCard,
	TemplateAskGame, TemplateMenu, TemplateAskName, TemplateAskIcon,
	TemplateAskDescription, TemplateAskLoad, TemplateSaved,
	TemplateEntryRemoved, TemplateLastEntry,
	ButtonGoMulti, ButtonAddEntry, ButtonRemoveEntry, ButtonPrevEntry, ButtonNextEntry,
	ButtonEditName, ButtonEditIcon, ButtonEditDescription, ButtonEditLoad,
	ButtonPrint, ButtonSave, ButtonCancel,
	UploadNotAllowed,
	UploadAskScript, UploadBlocked, UploadSubmitted, UploadReviewCard,
	UploadPendingPublic, UploadVerifiedPublic, UploadUnsurePublic,
	ButtonVerify, ButtonUnsure, ButtonDiscard,
	ReviewAskReason, ReviewResolved,
	UploadApproved, UploadUnsure, UploadDiscarded,
	WarningIssued, UploaderRoleRevoked,
	TicketCongrats, TicketRejected, TicketDiscussion,
	ButtonAccept, RequestAccepted, RequestRejected,
	SavesEmpty, SavesPanel, SavesLoaded, SavesNotFound,
	ButtonLoadSave, ButtonDeleteSave, ButtonClosePanel,
	ClearUsage, ClearDone,
	PurgeUsage, PurgeDone,
}

func TestAllKeysResolve(t *testing.T) {
	l, err := NewLocalizer(NewLocale(En))
	if err != nil {
		t.Fatalf("NewLocalizer() error: %v", err)
	}

	fields := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, key := range allKeys {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("key %q did not resolve: %v", key, r)
				}
			}()
			if got := l.MustLocalizeWithTemplate(key, fields...); got == "" {
				t.Errorf("key %q resolved to an empty message", key)
			}
		}()
	}
}

func TestTemplateFieldsSubstituted(t *testing.T) {
	l, err := NewLocalizer(NewLocale(En))
	if err != nil {
		t.Fatalf("NewLocalizer() error: %v", err)
	}

	got := l.MustLocalizeWithTemplate(CooldownWait, "3")
	if !strings.Contains(got, "3") {
		t.Errorf("CooldownWait = %q, want the wait time in it", got)
	}

	got = l.MustLocalizeWithTemplate(WarningIssued, "2", "5")
	if !strings.Contains(got, "2/5") {
		t.Errorf("WarningIssued = %q, want \"2/5\" in it", got)
	}
}
