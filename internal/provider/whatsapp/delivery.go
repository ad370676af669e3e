package whatsapp

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/gdtech/pairgate/internal/apperrors"
)

const credsFileName = "creds.json"

// Deliver sends the credential blob to the paired number as a document
// message, the same self-service handoff the pairing flow promises.
func (p *Provider) Deliver(ctx context.Context, phoneNumber string, blob []byte) error {
	client, ok := p.linkedClient(phoneNumber)
	if !ok {
		return apperrors.External(fmt.Sprintf("no linked device for %s", phoneNumber))
	}

	uploaded, err := client.Upload(ctx, blob, whatsmeow.MediaDocument)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeExternal, "upload credentials", err)
	}

	msg := &waE2E.Message{
		DocumentMessage: &waE2E.DocumentMessage{
			Title:         proto.String(credsFileName),
			FileName:      proto.String(credsFileName),
			Mimetype:      proto.String("application/json"),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		},
	}

	to := types.NewJID(normalizeUser(phoneNumber), types.DefaultUserServer)
	if _, err := client.SendMessage(ctx, to, msg); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeExternal, "send credentials", err)
	}
	return nil
}

// Subscribe follows the configured newsletter channel from the paired device.
func (p *Provider) Subscribe(ctx context.Context, phoneNumber string) error {
	if p.channelJID == "" {
		return nil
	}

	client, ok := p.linkedClient(phoneNumber)
	if !ok {
		return apperrors.External(fmt.Sprintf("no linked device for %s", phoneNumber))
	}

	jid, err := types.ParseJID(p.channelJID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeExternal, "parse channel jid", err)
	}

	if err := client.FollowNewsletter(ctx, jid); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeExternal, "follow channel", err)
	}
	return nil
}
