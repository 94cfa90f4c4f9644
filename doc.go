/*
Package ddns keeps a set of Cloudflare address records pointed at the host's public IPv4 address.

Usage will always start with [ddns.New],
which returns a [Reconciler] for one zone.
New requires a zone identifier and a [Provider] implementation for the DNS provider,
usually registered with [UsingCloudflare].
Additional options are listed in the docs for New.

Each call to [Reconciler.RunCycle] reloads the configured domain names,
resolves the current public IP,
and patches only the records that have drifted.
Records confirmed to match are cached so steady-state cycles make no provider calls,
and names missing from the zone are blacklisted for a day.
[RunDaemon] runs cycles on an interval.
*/
package ddns
