/*
Package multisig coordinates operations on a custody account that need the
approval of several independent owners before they may be executed.

A proposal becomes a TransactionRecord identified by its canonical hash. The
same hash is what every owner signs. Signatures are verified and collected
until the threshold captured at proposal time is reached, at which point the
record becomes ready to execute. Execution is claimed with a compare and swap
write before anything is sent to the chain, so a record is submitted at most
once no matter how many callers race for it.

  pending_signatures -> ready_to_execute -> executing -> completed | failed
  pending_signatures -> expired
  ready_to_execute   -> expired

All state lives in a RecordStore. Components in this package hold no state
between calls and can be used concurrently. Every write goes through
CompareAndSwap and a losing writer repeats the whole read, verify and mutate
cycle a bounded number of times before giving up with ErrConflict.

When the outcome of a submission cannot be determined (the gateway did not
answer or the confirmation wait timed out), the record stays in the executing
state and is flagged for reconciliation. The Reconciler resolves such records
later using the submission hash. It never marks a record failed on a timeout.
*/
package multisig
