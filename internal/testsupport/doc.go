/*

Package testsupport is an internal package designed to break import cycles
between procov/reexec and procov/testing: it allows passing information
about coverage profile data files and their locations forth and back between
the two packages when an application using procov/reexec is under test. And
it allows invoking procov/reexec's RunAction() for triggering a registered
action during re-execution.

*/
package testsupport
