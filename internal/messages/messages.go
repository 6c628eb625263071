// Package messages renders the human-readable text used in log lines, prompts
// and error messages. Text never drives control flow.
package messages

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Supplier turns a symbolic key and positional arguments into text.
type Supplier interface {
	Text(key string, args ...any) string
}

// Message keys.
const (
	TaskLogin          = "task.login"
	TaskLogout         = "task.logout"
	TaskListServer     = "task.listServer"
	TaskListLocal      = "task.listLocal"
	TaskReadDir        = "task.readDir"
	TaskAddEntries     = "task.addEntries"
	TaskClear          = "task.clearBatch"
	TaskLogContent     = "task.logBatch"
	TaskCreateDir      = "task.createDirectory"
	TaskCustom         = "task.custom"
	TaskCopy           = "task.copy"
	TaskMove           = "task.move"
	TaskRename         = "task.rename"
	TaskDelete         = "task.delete"
	TaskDownload       = "task.download"
	TaskUpload         = "task.upload"
	TaskReimport       = "task.reimport"
	TaskGetMeta        = "task.getMetaData"
	TaskSetMeta        = "task.setMetaData"
	TaskDeleteMeta     = "task.deleteMetaData"
	TaskServiceCommand = "task.serviceCommand"

	NoteDepthLimit     = "note.depthLimit"
	NoteBlacklisted    = "note.blacklisted"
	NoteConnectorType  = "note.connectorType"
	NoteEntrySkipped   = "note.entrySkipped"
	NoteEntryCovered   = "note.entryCovered"
	LogListingDone     = "log.listingDone"
	LogBatchContent    = "log.batchContent"
	LogBatchGroup      = "log.batchGroup"
	LogItemFailed      = "log.itemFailed"
	LogRunStopped      = "log.runStopped"
	LogRunFinished     = "log.runFinished"
	LogErrorRecorded   = "log.errorRecorded"
	PromptConflict     = "prompt.conflict"
	PromptError        = "prompt.error"
	ErrAborted         = "err.aborted"
	ErrInvalidPath     = "err.invalidPath"
	ErrHTTPStatus      = "err.httpStatus"
	ErrConflict        = "err.conflict"
	ErrNotFound        = "err.notFound"
	ErrInvalidResponse = "err.invalidResponse"
	ErrRequestFailed   = "err.requestFailed"
	ErrLocalIO         = "err.localIO"
	ErrNotLoggedIn     = "err.notLoggedIn"
	ErrStopped         = "err.stopped"
	ErrRequiresLocal   = "err.requiresLocal"
	ErrRequiresRemote  = "err.requiresRemote"
	ErrEmptyBatch      = "err.emptyBatch"
	ErrAlreadyRunning  = "err.alreadyRunning"
)

var english = map[string]string{
	TaskLogin:          "Logging in as %s",
	TaskLogout:         "Logging out",
	TaskListServer:     "Listing server directory %s",
	TaskListLocal:      "Listing local directory %s",
	TaskReadDir:        "Reading %s",
	TaskAddEntries:     "Adding %d entries",
	TaskClear:          "Clearing batch content",
	TaskLogContent:     "Logging batch content",
	TaskCreateDir:      "Creating directory %s",
	TaskCustom:         "%s",
	TaskCopy:           "Copying %s",
	TaskMove:           "Moving %s",
	TaskRename:         "Renaming %s",
	TaskDelete:         "Deleting %s",
	TaskDownload:       "Downloading %s",
	TaskUpload:         "Uploading %s",
	TaskReimport:       "Re-importing %s",
	TaskGetMeta:        "Reading metadata of %s",
	TaskSetMeta:        "Writing metadata of %s",
	TaskDeleteMeta:     "Deleting metadata of %s",
	TaskServiceCommand: "Sending service command %[2]s to %[1]s",

	NoteDepthLimit:    "Maximum recursion depth %[1]d reached in %[2]s, directories skipped",
	NoteBlacklisted:   "Skipping blacklisted directory %s",
	NoteConnectorType: "Skipping %[1]s: connector type %[2]s is not accepted",
	NoteEntrySkipped:  "Skipped %s",
	NoteEntryCovered:  "%[1]s is handled with its parent directory %[2]s",
	LogListingDone:    "Read %[1]s: %[2]d directories, %[3]d files",
	LogBatchContent:   "Batch content: %[1]d directories, %[2]d files, %[3]d bytes",
	LogBatchGroup:     "  %[1]s: %[2]d entries",
	LogItemFailed:     "%[1]s failed: %[2]v",
	LogRunStopped:     "Queue stopped after %[1]d of %[2]d items with %[3]d errors",
	LogRunFinished:    "Queue finished %[1]d items in %[2]v with %[3]d errors",
	LogErrorRecorded:  "Continuing after error: %v",
	PromptConflict:    "%s already exists.",
	PromptError:       "%v",

	ErrAborted:         "Aborted by user",
	ErrInvalidPath:     "Invalid path %q",
	ErrHTTPStatus:      "%[1]s failed with HTTP status %[2]d",
	ErrConflict:        "%s already exists",
	ErrNotFound:        "%s does not exist",
	ErrInvalidResponse: "Invalid server response for %s",
	ErrRequestFailed:   "Request for %[1]s failed: %[2]v",
	ErrLocalIO:         "Local file operation on %[1]s failed: %[2]v",
	ErrNotLoggedIn:     "Not logged in",
	ErrStopped:         "Queue stopped with %d errors",
	ErrRequiresLocal:   "%s requires a batch of local entries only",
	ErrRequiresRemote:  "%s requires a batch of server entries only",
	ErrEmptyBatch:      "%s: the batch is empty",
	ErrAlreadyRunning:  "Queue is already running",
}

var german = map[string]string{
	TaskLogin:          "Anmeldung als %s",
	TaskLogout:         "Abmeldung",
	TaskListServer:     "Lese Serververzeichnis %s",
	TaskListLocal:      "Lese lokales Verzeichnis %s",
	TaskReadDir:        "Lese %s",
	TaskCopy:           "Kopiere %s",
	TaskMove:           "Verschiebe %s",
	TaskRename:         "Benenne %s um",
	TaskDelete:         "Lösche %s",
	TaskDownload:       "Lade %s herunter",
	TaskUpload:         "Lade %s hoch",
	TaskReimport:       "Importiere %s erneut",
	NoteDepthLimit:     "Maximale Rekursionstiefe %[1]d in %[2]s erreicht, Verzeichnisse übersprungen",
	NoteBlacklisted:    "Überspringe gesperrtes Verzeichnis %s",
	PromptConflict:     "%s existiert bereits.",
	ErrAborted:         "Vom Benutzer abgebrochen",
	ErrConflict:        "%s existiert bereits",
	ErrNotFound:        "%s existiert nicht",
	ErrHTTPStatus:      "%[1]s fehlgeschlagen mit HTTP-Status %[2]d",
	ErrNotLoggedIn:     "Nicht angemeldet",
	ErrStopped:         "Warteschlange mit %d Fehlern angehalten",
	ErrAlreadyRunning:  "Warteschlange läuft bereits",
	ErrRequestFailed:   "Anfrage für %[1]s fehlgeschlagen: %[2]v",
	LogRunFinished:     "Warteschlange hat %[1]d Einträge in %[2]v mit %[3]d Fehlern abgearbeitet",
	TaskServiceCommand: "Sende Servicebefehl %[2]s an %[1]s",
}

var supported = []language.Tag{language.English, language.German}

// Catalog is the default Supplier backed by golang.org/x/text.
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// New creates a catalog for the given BCP 47 language. Unknown or empty
// languages fall back to English.
func New(lang string) *Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, msg := range english {
		_ = b.SetString(language.English, key, msg)
		if de, ok := german[key]; ok {
			msg = de
		}
		_ = b.SetString(language.German, key, msg)
	}

	tag := language.English
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			_, idx, _ := language.NewMatcher(supported).Match(parsed)
			tag = supported[idx]
		}
	}

	return &Catalog{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}
}

// Language returns the tag the catalog renders in.
func (c *Catalog) Language() language.Tag {
	return c.tag
}

// Text renders key. Keys without a template are returned verbatim followed by
// their arguments.
func (c *Catalog) Text(key string, args ...any) string {
	if _, ok := english[key]; !ok {
		if len(args) == 0 {
			return key
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		return key + " " + strings.Join(parts, " ")
	}
	return c.printer.Sprintf(key, args...)
}

var defaultCatalog = New("")

// Default returns the shared English catalog.
func Default() *Catalog {
	return defaultCatalog
}
