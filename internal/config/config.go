package config

import (
	"io/fs"
	"time"
)

// -----------------------------------------------------------------------------
// Build Information
// -----------------------------------------------------------------------------

// Build variables are injected via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// UserAgent identifies the HTTP client.
var UserAgent = "Bday-Bot/" + Version

// -----------------------------------------------------------------------------
// Application Constants
// -----------------------------------------------------------------------------

const (
	AppName           = "Birthday Bot"
	AppID             = "bday-bot"
	KeyringService    = "com.github.nakiaasuryanto.bday-bot"
	LocalhostBindAddr = "127.0.0.1"
	LogFileName       = "bot.log"
	EnvFileName       = ".env"
)

// -----------------------------------------------------------------------------
// Exit Codes
// -----------------------------------------------------------------------------

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// -----------------------------------------------------------------------------
// System & File Permissions
// -----------------------------------------------------------------------------

const (
	// FilePermUserRW represents -rw------- (Read/Write for owner only).
	// Used for credentials and logs.
	FilePermUserRW fs.FileMode = 0600

	// FilePermShared represents -rw-r--r--, used for the roster and the ledger
	// so an operator can inspect them without elevated rights.
	FilePermShared fs.FileMode = 0644

	// DirPermUserRWX represents drwx------ (Read/Write/Exec for owner only).
	DirPermUserRWX fs.FileMode = 0700

	// ChannelBufferSize defines the standard buffer size for internal signaling channels.
	ChannelBufferSize = 1

	// SessionEventBuffer is the capacity of a session handle's event channel.
	SessionEventBuffer = 16
)

// -----------------------------------------------------------------------------
// CLI Commands, Flags & Descriptions
// -----------------------------------------------------------------------------

const (
	CmdRoot      = "bday-bot"
	CmdServe     = "serve"
	CmdScan      = "scan"
	CmdGroups    = "groups"
	CmdImport    = "import [file.vcf]"
	CmdPreview   = "preview [index]"
	CmdVersion   = "version"
	CmdDescRoot  = "Daily birthday greetings for messaging groups"
	CmdDescServe = "Run the bot: session, daily scheduler and dashboard"
	CmdDescScan  = "Connect, run one birthday scan and exit"
	CmdDescGroup = "Connect and list the groups the bot can post to"
	CmdDescImp   = "Import contacts from a vCard file or URL into the roster"
	CmdDescPrev  = "Print the greeting composed for a roster record"
	CmdDescVer   = "Show application version and exit"

	FlagConfig       = "config"
	FlagDebug        = "debug"
	FlagURL          = "url"
	FlagUser         = "user"
	FlagGroupID      = "group-id"
	FlagGroupName    = "group-name"
	FlagRole         = "role"
	FlagDescConfig   = "Path to a YAML settings file (default: $BDAYBOT_CONFIG)"
	FlagDescDebug    = "Enable debug logging"
	FlagDescURL      = "Fetch the vCard data from this URL instead of a file"
	FlagDescUser     = "HTTP Basic Auth user for --url (password from $BDAYBOT_VCARD_PASSWORD or keyring)"
	FlagDescGroupID  = "Destination group id for imported contacts"
	FlagDescGroupNm  = "Destination group name for imported contacts"
	FlagDescRole     = "Role label for imported contacts"
	MsgVersionOutput = "%s version %s (%s, %s, %s/%s)\n"
	MsgGroupLine     = "%d. %s\n   ID: %s\n   Members: %d\n"
	MsgImportOutput  = "Imported %d contacts (%d skipped) into %s\n"
)

// -----------------------------------------------------------------------------
// Environment Variables
// -----------------------------------------------------------------------------

const (
	EnvConfigFile     = "BDAYBOT_CONFIG"
	EnvDataDir        = "BDAYBOT_DATA_DIR"
	EnvRosterFile     = "BDAYBOT_ROSTER_FILE"
	EnvLedgerFile     = "BDAYBOT_LEDGER_FILE"
	EnvLedgerIndex    = "BDAYBOT_LEDGER_INDEX"
	EnvAuthDir        = "BDAYBOT_AUTH_DIR"
	EnvBindAddr       = "BIND_ADDR"
	EnvPort           = "PORT"
	EnvZoneOffset     = "BDAYBOT_TZ_OFFSET_HOURS"
	EnvZoneLabel      = "BDAYBOT_TZ_LABEL"
	EnvScanSchedule   = "BDAYBOT_SCAN_CRON"
	EnvPacing         = "BDAYBOT_PACING"
	EnvReconnectDelay = "BDAYBOT_RECONNECT_DELAY"
	EnvLanguage       = "BDAYBOT_LANGUAGE"
	EnvSupervised     = "BDAYBOT_SUPERVISED"
	EnvRailway        = "RAILWAY_ENVIRONMENT"
	EnvSlackBotToken  = "SLACK_BOT_TOKEN"
	EnvSlackAppToken  = "SLACK_APP_TOKEN"
	EnvSlackInstall   = "SLACK_INSTALL_URL"
	EnvVCardPassword  = "BDAYBOT_VCARD_PASSWORD"

	// Keyring accounts used when a token is not present in the environment.
	KeyringBotToken = "slack-bot-token"
	KeyringAppToken = "slack-app-token"
)

// -----------------------------------------------------------------------------
// Default Values & Business Logic
// -----------------------------------------------------------------------------

const (
	DefaultDataDir        = "."
	DefaultRosterFile     = "birthdays.json"
	DefaultLedgerFile     = "birthday_log.txt"
	DefaultLedgerIndex    = "birthday_log.db"
	DefaultAuthDir        = "auth_session"
	DefaultPort           = "3001"
	DefaultZoneOffset     = 7
	DefaultZoneLabel      = "WIB"
	DefaultScanSchedule   = "0 8 * * *"
	DefaultPacing         = 2 * time.Second
	DefaultReconnectDelay = 5 * time.Second
	DefaultLanguage       = "id"
	DefaultLeapYear       = 2000 // Leap year fallback for vCard dates like --02-29

	// RestartExitDelay gives the dashboard time to answer before the process exits.
	RestartExitDelay = 1 * time.Second
	// LocalReconnectDelay is the pause before a fresh session after an explicit disconnect.
	LocalReconnectDelay = 2 * time.Second

	MinZoneOffset = -12
	MaxZoneOffset = 14
	MinPort       = 1
	MaxPort       = 65535

	// LogTailLines is the number of ledger lines returned to the dashboard.
	LogTailLines = 100
	// JSONIndent matches the formatting of hand-edited roster files.
	JSONIndent = "  "
)

// SupportedLanguages lists the message templates shipped in engine/locales.
var SupportedLanguages = []string{"id", "en"}

// -----------------------------------------------------------------------------
// Date & Time Formats
// -----------------------------------------------------------------------------

const (
	DateFormatFullDash  = "2006-01-02"
	DateFormatFullBasic = "20060102"
	DateFormatRFC3339   = time.RFC3339
	DateFormatFullT     = "2006-01-02T15:04:05Z"
	DateFormatNoYearD   = "--01-02"
	DateFormatNoYearB   = "--0102"
	DayKeyFormat        = "01-02"
	TimestampFormat     = "2006-01-02 15:04:05"
	ClockFormat         = "15:04"
)

// -----------------------------------------------------------------------------
// Roster JSON Fields
// -----------------------------------------------------------------------------

const (
	FieldName      = "nama"
	FieldBirthDate = "tanggal_lahir"
	FieldRole      = "role"
	FieldPhoneTag  = "nomor_wa"
	FieldGroupID   = "grup_id"
	FieldGroupName = "grup_nama"
)

// -----------------------------------------------------------------------------
// Ledger Line Formats
// -----------------------------------------------------------------------------

const (
	// LedgerLineFormat is "[timestamp] [day-key] - message".
	LedgerLineFormat    = "[%s] [%s] - %s\n"
	LedgerSentFormat    = "Ucapan terkirim untuk %s di grup %s"
	LedgerFailureFormat = "ERROR: Gagal mengirim ucapan untuk %s - %s"

	StatusSent   = "sent"
	StatusFailed = "failed"
)

// -----------------------------------------------------------------------------
// Translation Keys (I18n)
// -----------------------------------------------------------------------------

const (
	TKeyMessage         = "birthday_message"    // Requires Name, Role, DayMonth, Age, Tag
	TKeyDayMonth        = "day_month"           // Requires Day, Month
	TKeyEvtSummary      = "event_summary"       // Requires Name
	TKeyEvtSummaryAge   = "event_summary_age"   // Requires Name, Age
	TKeyEvtSummaryBirth = "event_summary_birth" // Requires Name (For age 0)
	TKeyMonthPrefix     = "month_"              // month_01 .. month_12
	MentionPrefix       = "@"
)

// -----------------------------------------------------------------------------
// Standards: iCalendar & vCard
// -----------------------------------------------------------------------------

const (
	ICalVersion = "2.0"
	ICalProdid  = "-//Bday Bot//Roster//ID"
	ICalCalName = "Birthdays"
	ICalMethod  = "PUBLISH"
	ICalScale   = "GREGORIAN"
	ICalDomain  = "bdaybot"

	PropUID        = "UID"
	PropSummary    = "SUMMARY"
	PropDTStart    = "DTSTART"
	PropDTStamp    = "DTSTAMP"
	PropRefresh    = "REFRESH-INTERVAL"
	PropVersion    = "VERSION"
	PropProdid     = "PRODID"
	PropXWRCalName = "X-WR-CALNAME"
	PropCalScale   = "CALSCALE"
	PropMethod     = "METHOD"

	VCardBDAY = "BDAY"
	VCardFN   = "FN"
	VCardN    = "N"
	VCardTEL  = "TEL"

	DefaultICalRefresh = 12 * time.Hour

	UIDSalt         = "bday-bot-v1-"
	UIDHashLength   = 16
	FormatHashInput = "%s|%s|%s"
	FormatUID       = "%s-%d@%s"

	// StubVCalendar is the minimal valid iCalendar object used when the roster is empty.
	StubVCalendar = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + ICalProdid + "\r\nEND:VCALENDAR\r\n"
)

// -----------------------------------------------------------------------------
// Network & Timeouts
// -----------------------------------------------------------------------------

const (
	HTTPTimeout         = 30 * time.Second
	ShutdownTimeout     = 5 * time.Second
	ServerReadTimeout   = 10 * time.Second
	ServerWriteTimeout  = 30 * time.Second
	ServerIdleTimeout   = 60 * time.Second
	SendTimeout         = 30 * time.Second
	ConnectWaitTimeout  = 2 * time.Minute
	MaxHTTPResponseSize = 16 * 1024 * 1024 // 16MB of vCards is plenty for a roster
	MaxRequestBodySize  = 1 * 1024 * 1024
	SchemeHTTP          = "http"
	SchemeHTTPS         = "https"
	AddrSeparator       = ":"
	SlackListPageSize   = 200
	QRImageSize         = 256
)

// -----------------------------------------------------------------------------
// HTTP Routes, Headers & MIME Types
// -----------------------------------------------------------------------------

const (
	RouteBirthdays      = "GET /api/birthdays"
	RouteBirthdayAdd    = "POST /api/birthdays"
	RouteBirthdayUpdate = "PUT /api/birthdays/{index}"
	RouteBirthdayDelete = "DELETE /api/birthdays/{index}"
	RouteLogs           = "GET /api/logs"
	RouteClearLog       = "POST /api/clear-birthday-log"
	RouteTestMessage    = "POST /api/test-message"
	RoutePreview        = "POST /api/preview-message"
	RouteCheck          = "POST /api/check-birthdays"
	RouteImport         = "POST /api/import-vcard"
	RouteDisconnect     = "POST /api/disconnect"
	RouteForceRestart   = "POST /api/force-restart"
	RouteReconnect      = "POST /api/reconnect"
	RouteGroups         = "POST /api/get-groups"
	RouteStatus         = "GET /api/status"
	RouteCalendar       = "/calendar.ics"
	RouteHealth         = "GET /health"
	PathParamIndex      = "index"
	QueryGroupID        = "group_id"
	QueryGroupName      = "group_name"
	QueryRole           = "role"

	HeaderContentType     = "Content-Type"
	HeaderCacheControl    = "Cache-Control"
	HeaderETag            = "ETag"
	HeaderLastModified    = "Last-Modified"
	HeaderRetryAfter      = "Retry-After"
	HeaderAllow           = "Allow"
	HeaderXContentType    = "X-Content-Type-Options"
	HeaderUserAgent       = "User-Agent"
	HeaderAccept          = "Accept"
	HeaderIfNoneMatch     = "If-None-Match"
	HeaderIfModifiedSince = "If-Modified-Since"

	MimeTextCalendar    = "text/calendar; charset=utf-8"
	MimeJSON            = "application/json; charset=utf-8"
	MimeTextPlain       = "text/plain; charset=utf-8"
	MimeNoSniff         = "nosniff"
	MimePNGDataURL      = "data:image/png;base64,"
	MimeVCard           = "text/vcard, text/x-vcard;q=0.9, */*;q=0.1"
	MediaTypeHTML       = "text/html"
	CacheControlPrivate = "private, no-cache"
	AllowedMethods      = "GET, HEAD"
	RetryAfterSeconds   = "10"
	FormatETag          = `"%s"`
)

// -----------------------------------------------------------------------------
// Error Messages (Technical/Logs)
// -----------------------------------------------------------------------------

const (
	ErrStorage          = "storage error"
	ErrNotConnected     = "messaging session is not connected"
	ErrScanInProgress   = "a birthday scan is already running"
	ErrValidation       = "invalid roster record"
	ErrIndexRange       = "roster index out of range"
	ErrRosterRead       = "failed to read roster"
	ErrRosterParse      = "roster file is not a JSON array of records"
	ErrRosterWrite      = "failed to write roster"
	ErrLedgerOpen       = "failed to open delivery ledger"
	ErrLedgerMigrate    = "failed to migrate delivery index"
	ErrLedgerQuery      = "failed to query delivery index"
	ErrLedgerWrite      = "failed to write delivery ledger"
	ErrLedgerRead       = "failed to read delivery ledger"
	ErrSend             = "failed to send message"
	ErrCompose          = "failed to compose message"
	ErrDateParse        = "unable to parse date"
	ErrLocalesAccess    = "failed to access embedded locales"
	ErrLocaleLoad       = "failed to load locale file"
	ErrLanguage         = "unsupported language"
	ErrICalEncode       = "failed to encode iCalendar data"
	ErrVCardParse       = "failed to parse vCard stream"
	ErrInvalidURL       = "invalid URL structure"
	ErrProtocol         = "unsupported protocol scheme (http/https only)"
	ErrFetch            = "failed to download address book"
	ErrFetchStatus      = "address book server returned an error"
	ErrFetchHTML        = "address book URL returned an HTML page (wrong link or credentials?)"
	ErrLoggedOut        = "messaging session logged out; re-pairing required"
	ErrRestart          = "restart requested"
	ErrNoCredentials    = "no messaging credentials available"
	ErrConnect          = "failed to establish messaging session"
	ErrCredentialsSave  = "failed to persist session credentials"
	ErrCredentialsLoad  = "failed to load session credentials"
	ErrCredentialsPurge = "failed to delete session credentials"
	ErrQRRender         = "failed to render pairing QR code"
	ErrListGroups       = "failed to list groups"
	ErrSchedule         = "invalid scan schedule"
	ErrConfigRead       = "failed to read settings file"
	ErrConfigParse      = "failed to parse settings file"
	ErrConfigInvalid    = "invalid settings"
	ErrPortRange        = "server port must be a number between 1 and 65535"
	ErrZoneOffset       = "timezone offset must be between -12 and +14 hours"
	ErrDuration         = "durations must be positive"
	ErrServerStartup    = "server startup failed"
	ErrServerShutdown   = "server shutdown failed"
	ErrWriteResp        = "failed to write response body"
	ErrLogFile          = "failed to open log file"
	ErrAppFailed        = "application failed unexpectedly"
	ErrConnectTimeout   = "timed out waiting for the messaging session"
	ErrCreateDir        = "failed to create data directory"
	ErrImportSource     = "exactly one of a vCard file argument or --url is required"
	ErrPreviewIndex     = "roster index must be a non-negative number"
)

// -----------------------------------------------------------------------------
// Dashboard Responses
// -----------------------------------------------------------------------------

const (
	HTTPMsgInitializing = "Calendar initializing, please try again shortly."
	HTTPMsgMethodNotAll = "Method Not Allowed"
	HTTPMsgBadRequest   = "Invalid request body"
	HTTPMsgBadIndex     = "Invalid index"

	RespBirthdayAdded   = "Birthday added successfully"
	RespBirthdayUpdated = "Birthday updated successfully"
	RespBirthdayDeleted = "Birthday deleted successfully"
	RespBirthdayMissing = "Birthday not found"
	RespLogCleared      = "Birthday log cleared successfully!"
	RespLogClearFailed  = "Error clearing log: %v"
	RespNoLogs          = "No logs available"
	RespNoBirthdays     = "No birthdays in database"
	RespNameNotFound    = "Birthday not found for: %s"
	RespTestMessage     = "Test message would be sent for: %s\nGroup: %s\n\n%s"
	RespDisconnected    = "Disconnected. Session cleared, waiting for a new pairing."
	RespRestarting      = "Restarting messaging session..."
	RespReconnecting    = "Reconnect attempt started"
	RespGroupsFetched   = "Found %d groups"
	RespGroupsFailed    = "Error getting groups: %v"
	RespScanDone        = "Scan %s: %d matches, %d sent, %d skipped, %d failed"
	RespScanFailed      = "Scan failed: %v"
	RespImportDone      = "Imported %d contacts (%d skipped)"
	RespImportFailed    = "Import failed: %v"
	RespHealthy         = "OK"
)

// -----------------------------------------------------------------------------
// Log Messages
// -----------------------------------------------------------------------------

const (
	MsgAppStarting     = "Starting application"
	MsgAppStop         = "Application stopped gracefully"
	MsgLogWarning      = "Warning: %s at %s: %v\n"
	MsgEnvMissing      = "No .env file found, using process environment"
	MsgKeyringMiss     = "Token not found in keyring"
	MsgRosterCreated   = "Roster file not found, created an empty one"
	MsgRecordRejected  = "Skipping invalid roster record"
	MsgRosterLoaded    = "Roster loaded"
	MsgRosterSaved     = "Roster saved"
	MsgScanStarted     = "Checking birthdays"
	MsgScanSkipped     = "Greeting already sent today, skipping"
	MsgScanMatch       = "Birthday detected"
	MsgScanNone        = "No birthdays today"
	MsgScanDone        = "Birthday check completed"
	MsgScanBusy        = "Birthday check already running, trigger ignored"
	MsgScanAborted     = "Birthday check aborted"
	MsgSending         = "Sending birthday greeting"
	MsgSent            = "Birthday greeting sent"
	MsgSendFailed      = "Failed to send birthday greeting"
	MsgNotConnected    = "Messaging session not connected, greeting not sent"
	MsgLedgerCleared   = "Delivery ledger cleared"
	MsgLedgerDup       = "Delivery already recorded for today"
	MsgSessionConnect  = "Connecting messaging session"
	MsgSessionOpen     = "Messaging session connected"
	MsgSessionClosed   = "Messaging session closed"
	MsgSessionRetry    = "Reconnect scheduled"
	MsgSessionIdle     = "Waiting for pairing; not reconnecting automatically"
	MsgSessionLogout   = "Messaging session logged out; delete credentials and pair again"
	MsgSessionQR       = "New pairing QR code available via dashboard"
	MsgSessionStale    = "Ignoring event from a previous session"
	MsgSessionCreds    = "Session credentials updated"
	MsgDisconnectStart = "Disconnect requested"
	MsgDisconnectDone  = "Session state reset"
	MsgLogoutFailed    = "Logout error (continuing)"
	MsgPurgeFailed     = "Could not delete credential file"
	MsgRestartExit     = "Exiting process so the supervisor restarts it"
	MsgRestartLocal    = "Reconnecting with a fresh session"
	MsgSessionShutdown = "Closing messaging session"
	MsgGroupsFetched   = "Groups fetched"
	MsgSchedulerStart  = "Daily scan scheduled"
	MsgSchedulerFire   = "Scheduled birthday check triggered"
	MsgSchedulerStop   = "Scheduler stopped"
	MsgServerListen    = "HTTP server listening"
	MsgServerStop      = "Shutting down HTTP server..."
	MsgCacheUpdated    = "Calendar cache updated"
	MsgCalendarFailed  = "Calendar generation failed"
	MsgLocaleSkip      = "Skipping non-locale file"
	MsgLocaleLoaded    = "Locale loaded successfully"
	MsgSkippedCard     = "Skipping malformed vCard"
	MsgSkippedDate     = "Skipping contact without a full birth date"
	MsgImportDone      = "vCard import finished"
	MsgSlackEvent      = "Socket mode event"
	MsgFetchStart      = "Initiating vCard download"
	MsgFetchStatus     = "Server returned error status"
	MsgFetchHTML       = "Address book URL answered with HTML"
	MsgImportRemote    = "Remote address book imported"
	MsgSessionWait     = "Waiting for the messaging session to open"
	MsgCalendarReady   = "Calendar feed ready"
)

// -----------------------------------------------------------------------------
// Structured Logging Keys (slog)
// -----------------------------------------------------------------------------

const (
	LogKeyComponent = "component"
	LogKeyError     = "error"
	LogKeyURL       = "url"
	LogKeyStatus    = "status_code"
	LogKeyFile      = "file"
	LogKeyLang      = "lang"
	LogKeyPort      = "port"
	LogKeyAddr      = "addr"
	LogKeyName      = "name"
	LogKeyGroup     = "group"
	LogKeyGroupID   = "group_id"
	LogKeyAge       = "age"
	LogKeyIndex     = "index"
	LogKeyFields    = "fields"
	LogKeyDayKey    = "day_key"
	LogKeyTotal     = "total"
	LogKeyValid     = "valid"
	LogKeyRejected  = "rejected"
	LogKeyMatches   = "matches"
	LogKeySent      = "sent"
	LogKeySkipped   = "skipped"
	LogKeyFailed    = "failed"
	LogKeyState     = "state"
	LogKeyReason    = "reason"
	LogKeyDelay     = "delay"
	LogKeyNext      = "next"
	LogKeySchedule  = "schedule"
	LogKeyZone      = "zone"
	LogKeyCount     = "count"
	LogKeyType      = "type"
	LogKeyTrigger   = "trigger"
	LogKeyDuration  = "duration_ms"
	LogKeySizeBytes = "size_bytes"
	LogKeyETag      = "etag"

	// Startup Info Keys
	LogKeyBuild   = "build"
	LogKeyApp     = "app"
	LogKeyVersion = "version"
	LogKeyGoVer   = "go_version"
	LogKeyEnv     = "env"
	LogKeyOS      = "os"
	LogKeyArch    = "arch"
	LogKeyPID     = "pid"
)

// -----------------------------------------------------------------------------
// Log Components
// -----------------------------------------------------------------------------

const (
	CompMain      = "main"
	CompConfig    = "config"
	CompRoster    = "roster"
	CompLedger    = "ledger"
	CompComposer  = "composer"
	CompDispatch  = "dispatcher"
	CompScan      = "scan"
	CompSession   = "session"
	CompSlack     = "slack"
	CompScheduler = "scheduler"
	CompServer    = "server"
	CompFetcher   = "fetcher"
	CompImport    = "import"
	CompI18n      = "i18n"
)

// -----------------------------------------------------------------------------
// Scan Triggers
// -----------------------------------------------------------------------------

const (
	TriggerSchedule = "schedule"
	TriggerOpen     = "session_open"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)
