// Package cooldown stores per-provider back-off windows.
//
// A provider that answers with a rate limit tells the caller how long to
// wait. The mailer client records that window with Hold and consults
// Remaining before the next attempt, so that every instance of a service
// stays quiet until the provider is ready again.
//
// Two stores are provided:
//
//   - [Memory] keeps windows in process memory. Use it for a single instance
//     or in tests.
//   - [Redis] keeps windows in Redis so that all replicas share them.
//
// Both satisfy mailer.Cooldown:
//
//	store := cooldown.NewRedis(client, cooldown.WithPrefix("courier"))
//	c := mailer.NewClient(connector, mailer.WithCooldown(store))
package cooldown
