package registry

// DefaultProfiles returns the built-in agent profiles.
func DefaultProfiles() []*Profile {
	return []*Profile{
		{
			ID:             "gemini",
			Name:           "Gemini CLI",
			Description:    "Google Gemini CLI coding agent driven in non-interactive prompt mode.",
			Executable:     "gemini",
			PromptFlag:     "-p",
			PlanArgs:       []string{"--approval-mode", "plan"},
			PlanSuffix:     " (Please only output a detailed execution plan text. Do not execute any tools or modify any files.)",
			AutoArgs:       []string{"--yolo"},
			ResumeArgs:     []string{"--resume", "latest"},
			IncludeDirFlag: "--include-directories",
			StateHomeEnv:   "HOME",
			StateDirName:   ".gemini",
			CredentialArtifacts: []string{
				"oauth_creds.json",
				"google_accounts.json",
				"settings.json",
				"installation_id",
			},
			ResumeMissSignatures: []string{
				"No previous sessions found",
				"Error resuming session",
			},
			NotifyMarker:   "[NOTIFY]",
			ApprovalMarker: "[APPROVAL]",
			ExtraEnv: map[string]string{
				"OTEL_SDK_DISABLED": "true",
			},
			Enabled: true,
		},
	}
}
