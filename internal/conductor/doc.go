// Package conductor runs individual contests. Each fixture gets one
// Match instance driven through invite, acknowledge, choose, resolve,
// notify, report - with two independent timeout classes (short ack
// deadline, longer decision deadline) and forfeiture on timeout or
// terminal error. Many matches run concurrently; a match talks to its
// two participants through the resilient transport client and owns its
// state exclusively.
package conductor
