package domain

// EventType names an auditable event. The set is closed: components must
// use one of these values so searches and retention policies stay stable.
type EventType string

const (
	// Authentication events.
	EventAuthLogin         EventType = "auth.login"
	EventAuthLogout        EventType = "auth.logout"
	EventAuthRefresh       EventType = "auth.refresh"
	EventAuthRefreshReplay EventType = "auth.refresh.replay"
	EventAuthMfaChallenge  EventType = "auth.mfa.challenge"
	EventAuthMfaVerified   EventType = "auth.mfa.verified"
	EventAuthMfaFailed     EventType = "auth.mfa.failed"
	EventAuthStepUp        EventType = "auth.stepup"
	EventAuthLockout       EventType = "auth.lockout"

	// KV secret events.
	EventSecretWrite    EventType = "secret.write"
	EventSecretRead     EventType = "secret.read"
	EventSecretDelete   EventType = "secret.delete"
	EventSecretUndelete EventType = "secret.undelete"
	EventSecretDestroy  EventType = "secret.destroy"
	EventSecretList     EventType = "secret.list"

	// Transit engine events.
	EventTransitKeyCreate EventType = "transit.key.create"
	EventTransitKeyRotate EventType = "transit.key.rotate"
	EventTransitKeyDelete EventType = "transit.key.delete"
	EventTransitEncrypt   EventType = "transit.encrypt"
	EventTransitDecrypt   EventType = "transit.decrypt"
	EventTransitSign      EventType = "transit.sign"
	EventTransitVerify    EventType = "transit.verify"
	EventTransitHmac      EventType = "transit.hmac"
	EventTransitRewrap    EventType = "transit.rewrap"
	EventTransitDatakey   EventType = "transit.datakey"

	// PAM events.
	EventPamSafeCreate       EventType = "pam.safe.create"
	EventPamSafeUpdate       EventType = "pam.safe.update"
	EventPamSafeDelete       EventType = "pam.safe.delete"
	EventPamAccountCreate    EventType = "pam.account.create"
	EventPamAccountReveal    EventType = "pam.account.reveal"
	EventPamCheckoutOpened   EventType = "pam.checkout.opened"
	EventPamCheckoutDenied   EventType = "pam.checkout.denied"
	EventPamCheckin          EventType = "pam.checkin"
	EventPamForceCheckin     EventType = "pam.checkin.forced"
	EventPamCheckoutExpired  EventType = "pam.checkout.expired"
	EventPamSessionCommand   EventType = "pam.session.command"
	EventPamSessionFlagged   EventType = "pam.session.flagged"
	EventPamRotationSuccess  EventType = "pam.rotation.succeeded"
	EventPamRotationFailed   EventType = "pam.rotation.failed"
	EventPamApprovalDecision EventType = "pam.approval.decision"
	EventPamJitGranted       EventType = "pam.jit.granted"
	EventPamJitRevoked       EventType = "pam.jit.revoked"
	EventPamJitExpired       EventType = "pam.jit.expired"

	// User management events.
	EventUserCreate         EventType = "user.create"
	EventUserDelete         EventType = "user.delete"
	EventUserPasswordChange EventType = "user.password.change"
	EventUserMfaEnroll      EventType = "user.mfa.enroll"

	// System events.
	EventSysSealInit     EventType = "sys.seal.init"
	EventSysSealUnseal   EventType = "sys.seal.unseal"
	EventSysSealSealed   EventType = "sys.seal.sealed"
	EventSysRekey        EventType = "sys.rekey"
	EventAuditExport     EventType = "audit.export"
	EventAuditRetention  EventType = "audit.retention"
	EventPolicyDecision  EventType = "policy.decision"
	EventSessionRevoked  EventType = "auth.session.revoked"
	EventSessionEvicted  EventType = "auth.session.evicted"
)
