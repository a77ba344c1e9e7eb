// Package audit records security-relevant actions such as data exports and
// account deletions.
//
// A Logger fills request-scoped fields (user, request id, IP, user agent)
// through extractors registered at construction and hands the event to a
// Storage. Reader lists stored events for administrators.
//
//	auditLog := audit.NewLogger(store,
//		audit.WithUserIDExtractor(jwt.UserIDFromContext),
//		audit.WithIPExtractor(clientip.FromContext),
//	)
//	err := auditLog.Log(ctx, "export_data", audit.WithResource("user", userID))
package audit
