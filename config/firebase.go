package config

// FirebaseCredentialsPath returns the service-account key used for FCM.
// An empty path disables push fan-out.
func FirebaseCredentialsPath() string {
	return AppConfig.FirebaseCredentialsFile
}
