package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/outreach/internal/lead"
	"github.com/kalambet/outreach/internal/mail"
	"github.com/kalambet/outreach/internal/storage"
)

// process walks the campaign's leads batch by batch. Per-lead failures are
// logged and skipped; quota exhaustion, a pause request, cancellation and
// store failures end the run.
func (o *Orchestrator) process(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during campaign processing: %v", r)
		}
	}()

	job, _ := o.Status(id)
	campaign, err := o.store.GetCampaign(job.CampaignID)
	if err != nil {
		return fmt.Errorf("loading campaign %s: %w", job.CampaignID, err)
	}
	settings := campaign.Settings
	if o.defaults != nil {
		settings = settings.Merge(o.defaults())
	}

	leads, err := o.store.ListLeads(storage.LeadFilter{OwnerID: job.UserID, Limit: o.cfg.MaxLeads})
	if err != nil {
		return fmt.Errorf("listing leads: %w", err)
	}
	o.persist(o.update(id, func(j *lead.CampaignJob) { j.Total = len(leads) }))

	size := o.cfg.BatchSize
	for start := 0; start < len(leads); start += size {
		if start > 0 {
			if err := o.sleep(ctx, o.cfg.BatchInterval); err != nil {
				return err
			}
		}
		if err := o.checkpoint(ctx, id); err != nil {
			return err
		}

		end := min(start+size, len(leads))
		for _, l := range leads[start:end] {
			sent, err := o.processLead(ctx, campaign, settings, l)
			if isQuota(err) {
				return err
			}
			o.update(id, func(j *lead.CampaignJob) {
				j.Processed++
				if sent {
					j.EmailsSent++
				}
			})
			if err == nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("lead processing failed", "job", id, "lead", l.Email, "error", err)
		}

		snap := o.update(id, func(*lead.CampaignJob) {})
		o.persist(snap)
		o.logger.Debug("batch done", "job", id, "processed", snap.Processed, "total", snap.Total)
	}
	return nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.jobs[id].pause {
		return errPauseRequested
	}
	return nil
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// processLead contacts one lead and reports whether an email went out.
func (o *Orchestrator) processLead(ctx context.Context, c lead.Campaign, settings lead.CampaignSettings, l lead.Lead) (bool, error) {
	if ok, reason := o.cfg.Eligible(l, c.ID, o.now()); !ok {
		o.logger.Debug("lead skipped", "lead", l.Email, "reason", reason)
		return false, nil
	}

	gen, err := o.gen.GenerateColdEmail(ctx, l, settings, nil)
	if err != nil {
		return false, fmt.Errorf("generating email: %w", err)
	}

	receipt, err := o.sender.Send(ctx, mail.Message{
		To:       l.Email,
		Subject:  gen.Email.SubjectLine,
		Body:     gen.Email.EmailBody,
		FromName: settings.FromName,
	})
	if err != nil {
		return false, fmt.Errorf("sending email: %w", err)
	}
	sentAt := receipt.SentAt
	if sentAt.IsZero() {
		sentAt = o.now().UTC()
	}

	if _, err := o.store.CreateEmail(lead.EmailRecord{
		LeadID:     l.ID,
		CampaignID: c.ID,
		OwnerID:    l.OwnerID,
		Type:       lead.EmailCold,
		Subject:    gen.Email.SubjectLine,
		Body:       gen.Email.EmailBody,
		Status:     "sent",
		MessageID:  receipt.MessageID,
		SentAt:     sentAt,
	}); err != nil {
		o.logger.Warn("recording sent email", "lead", l.Email, "error", err)
	}

	if err := l.Advance(lead.StatusContacted); err != nil {
		o.logger.Debug("lead status unchanged", "lead", l.Email, "status", l.Status)
	}
	l.LastContacted = sentAt
	l.CampaignID = c.ID
	if err := o.store.UpdateLead(l); err != nil {
		o.logger.Warn("updating contacted lead", "lead", l.Email, "error", err)
	}

	if o.planner != nil {
		if err := o.planner.Plan(l, c.ID, sentAt); err != nil {
			o.logger.Warn("scheduling follow-ups", "lead", l.Email, "error", err)
		}
	}
	return true, nil
}
