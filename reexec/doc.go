/*

Package reexec allows to fork and then re-execute the current application
(process) in order to only invoke a specific action function, such as a
worker of a process pool.

Re-executed children automatically join the coverage run of their parent:
each child gets registered as a worker of the coverage run and inherits the
activation environment, so that it records and saves its coverage data on
its own. When under test, re-executed test binaries additionally get their
own coverage profile data files.

*/
package reexec
