// Package push はFirebase Cloud Messagingへのプッシュ通知送信を提供する。
package push

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/hitoshi/coachnotify/internal/model"
)

// messagingClient はFCMクライアントの送信部分。テストで差し替えるために定義する。
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender は1トークンへ1通を送るFCM送信アダプタ。
// 送信のリトライは行わない。
type FCMSender struct {
	client messagingClient
}

// NewFCMSender はFirebaseアプリを初期化してFCMSenderを生成する。
// credentialsFileが空の場合はApplication Default Credentialsを使う。
func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize messaging client: %w", err)
	}
	return &FCMSender{client: client}, nil
}

// newFCMSenderWithClient は任意のmessagingClientでFCMSenderを生成する。
func newFCMSenderWithClient(client messagingClient) *FCMSender {
	return &FCMSender{client: client}
}

// Send はtokenへ通知を1通送信する。
func (s *FCMSender) Send(ctx context.Context, token string, n model.Notification) error {
	msg := buildMessage(token, n)
	if _, err := s.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("fcm send failed: %w", err)
	}
	return nil
}

// buildMessage はNotificationをFCMメッセージに変換する。
// FCMのdataは文字列値のみ受け付けるため、数値は文字列化する。
func buildMessage(token string, n model.Notification) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: stringifyData(n.Data),
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: "default"},
			},
		},
	}
}

func stringifyData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
