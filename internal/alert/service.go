package alert

import (
	"context"
	"log"
	"time"
)

// Start launches the scheduling loop in the background. The loop ticks on the
// configured interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
	log.Println("🚀 Alert service started.")
}

func (s *Scheduler) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Panic recovered in alert scheduler: %v. Restarting alert scheduler in 10 seconds...\n", r)
			time.Sleep(10 * time.Second)
			go s.run(ctx)
		}
	}()

	s.Tick(ctx, s.now())

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}
