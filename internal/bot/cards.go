package bot

import "time"

// offlineNoticeTimeout bounds delivery of shutdown notices.
const offlineNoticeTimeout = 5 * time.Second

// statusCard renders a plain informational card.
func statusCard(title, body string) map[string]interface{} {
	return map[string]interface{}{
		"config": map[string]interface{}{"wide_screen_mode": true},
		"header": map[string]interface{}{
			"title":    map[string]interface{}{"tag": "plain_text", "content": title},
			"template": "blue",
		},
		"elements": []interface{}{
			map[string]interface{}{
				"tag":  "div",
				"text": map[string]interface{}{"tag": "lark_md", "content": body},
			},
		},
	}
}

// decisionCard renders a card with approve and deny buttons. The button
// values carry the correlation ID so the press can be routed back to the
// right command.
func decisionCard(title, body, correlationID, approveLabel, denyLabel string) map[string]interface{} {
	return map[string]interface{}{
		"config": map[string]interface{}{"wide_screen_mode": true},
		"header": map[string]interface{}{
			"title":    map[string]interface{}{"tag": "plain_text", "content": title},
			"template": "orange",
		},
		"elements": []interface{}{
			map[string]interface{}{
				"tag":  "div",
				"text": map[string]interface{}{"tag": "lark_md", "content": body},
			},
			map[string]interface{}{"tag": "hr"},
			map[string]interface{}{
				"tag": "action",
				"actions": []interface{}{
					map[string]interface{}{
						"tag":  "button",
						"text": map[string]interface{}{"tag": "plain_text", "content": approveLabel},
						"type": "primary",
						"value": map[string]interface{}{
							"action":         "approve",
							"correlation_id": correlationID,
						},
					},
					map[string]interface{}{
						"tag":  "button",
						"text": map[string]interface{}{"tag": "plain_text", "content": denyLabel},
						"type": "danger",
						"value": map[string]interface{}{
							"action":         "deny",
							"correlation_id": correlationID,
						},
					},
				},
			},
		},
	}
}
