// utils/firebase.go
package utils

import (
	"context"
	"fmt"

	"xquests/config"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var FCMClient *messaging.Client

// FirebaseInit initializes the Firebase App and Messaging client. Without a
// credentials file push is disabled and FCMClient stays nil.
func FirebaseInit() error {
	path := config.FirebaseCredentialsPath()
	if path == "" {
		return nil
	}
	ctx := context.Background()
	opt := option.WithCredentialsFile(path)

	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return fmt.Errorf("firebase: error initializing app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("firebase: error getting Messaging client: %w", err)
	}

	FCMClient = client
	return nil
}
