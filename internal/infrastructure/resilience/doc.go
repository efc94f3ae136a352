/*
Package resilience provides per-host circuit breakers for outbound traffic.

A Group hands out one Breaker per key. A breaker opens after Threshold
consecutive failures and rejects calls with ErrCircuitOpen until Cooldown
has passed, then lets one probe through: success closes it, failure opens
it again.

	group := resilience.NewGroup(resilience.Settings{Threshold: 3, Cooldown: 10 * time.Second})
	err := group.Do("api.example.com", func() error {
		_, err := client.Get(url)
		return err
	})

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[probe ok]-> Closed
	                                  ^                     |
	                                  +----[probe fails]----+
*/
package resilience
