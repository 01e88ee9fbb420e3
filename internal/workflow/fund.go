package workflow

var fundRules = []Rule{
	{Action: ActionRecommend, From: []Status{StatusPending},
		Roles: []Role{RoleTDO}, apply: stampWithNote(FieldTDORecommendedAt, FieldTDORecommendedBy, FieldTDOComment)},
	{Action: ActionApprove, From: []Status{StatusPending}, To: StatusApproved,
		Roles: []Role{RoleDDO}, apply: stampWithNote(FieldApprovedAt, FieldApprovedBy, FieldDDOComment)},
	{Action: ActionReject, From: []Status{StatusPending}, To: StatusRejected,
		Roles: []Role{RoleTDO, RoleDDO}, apply: stampWithNote(FieldRejectedAt, FieldRejectedBy, FieldRejectionReason)},
	{Action: ActionDisburse, From: []Status{StatusApproved}, To: StatusDisbursed,
		Roles: []Role{RoleDDO}, apply: stamp(FieldDisbursedAt, FieldDisbursedBy)},
}
