package audit

// Врапперы с фиксированным маппингом category/severity. Логики в них нет —
// только форма записи, чтобы вызывающий код не собирал Entry руками.

// Auth фиксирует событие аутентификации. Неуспех — warning.
func (l *Ledger) Auth(action, userID, ip, userAgent string, success bool, details map[string]interface{}) string {
	sev := SeverityInfo
	if !success {
		sev = SeverityWarning
	}
	return l.Log(Entry{
		Category:  CategoryAuth,
		Severity:  sev,
		Action:    action,
		UserID:    userID,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   details,
		Success:   success,
	})
}

// Payment фиксирует платежное событие. Неуспешный платеж — всегда critical:
// деньги ушли или не ушли, это форензик-запись.
func (l *Ledger) Payment(action, userID, targetID string, success bool, details map[string]interface{}) string {
	sev := SeverityInfo
	if !success {
		sev = SeverityCritical
	}
	return l.Log(Entry{
		Category:   CategoryPayment,
		Severity:   sev,
		Action:     action,
		UserID:     userID,
		TargetID:   targetID,
		TargetType: "payment",
		Details:    details,
		Success:    success,
	})
}

// Chargeback — частный случай платежа: category=payment, severity=critical, success=false.
func (l *Ledger) Chargeback(userID, targetID string, details map[string]interface{}) string {
	return l.Log(Entry{
		Category:   CategoryPayment,
		Severity:   SeverityCritical,
		Action:     "chargeback",
		UserID:     userID,
		TargetID:   targetID,
		TargetType: "payment",
		Details:    details,
		Success:    false,
	})
}

// Security фиксирует security-событие с явной серьезностью.
func (l *Ledger) Security(action string, severity Severity, userID, ip string, details map[string]interface{}) string {
	return l.Log(Entry{
		Category:  CategorySecurity,
		Severity:  severity,
		Action:    action,
		UserID:    userID,
		IPAddress: ip,
		Details:   details,
		Success:   false,
	})
}

// Autonomous фиксирует действие автономной подсистемы. Неуспех — warning.
func (l *Ledger) Autonomous(system, action string, success bool, errMsg string, details map[string]interface{}) string {
	sev := SeverityInfo
	if !success {
		sev = SeverityWarning
	}
	return l.Log(Entry{
		Category:     CategoryAutonomous,
		Severity:     sev,
		Action:       action,
		UserID:       system,
		TargetType:   "autonomous_system",
		Details:      details,
		Success:      success,
		ErrorMessage: errMsg,
	})
}
