// File: utils/constants.go
package utils

import "time"

// NotificationCachePrefix prefixes the per-identity notification cache key.
const NotificationCachePrefix = "notifications:"

// DeviceTokenPrefix prefixes the FCM device token key of a user.
const DeviceTokenPrefix = "fcm:token:"

// DeviceTokenTTL bounds how long an unrefreshed device token is kept.
const DeviceTokenTTL = 60 * 24 * time.Hour
