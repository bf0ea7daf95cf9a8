package contact

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// ErrDelivery wraps a mail failure after the message was stored.
var ErrDelivery = errors.New("contact: delivery failed")

// Inbox is the receiving end of the contact endpoint. Every valid message
// is stored; it is also mailed when a mailer is configured.
type Inbox struct {
	archive *Archive
	mailer  *Mailer
}

// NewInbox returns an inbox. Either argument may be nil.
func NewInbox(archive *Archive, mailer *Mailer) *Inbox {
	return &Inbox{archive: archive, mailer: mailer}
}

// Send implements Sender so the site can deliver to itself in-process.
func (in *Inbox) Send(ctx context.Context, f Form) error {
	if err := f.Validate(); err != nil {
		return err
	}
	var id int64
	if in.archive != nil {
		var err error
		if id, err = in.archive.Save(ctx, f); err != nil {
			return fmt.Errorf("%w: %v", ErrDelivery, err)
		}
	}
	if !in.mailer.Configured() {
		if in.archive == nil {
			return fmt.Errorf("%w: no archive or mailer configured", ErrDelivery)
		}
		glog.V(1).Infof("contact: message %d stored, mail not configured", id)
		return nil
	}
	if err := in.mailer.Send(ctx, f); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if in.archive != nil {
		if err := in.archive.MarkDelivered(ctx, id); err != nil {
			glog.Warningf("contact: %v", err)
		}
	}
	return nil
}
