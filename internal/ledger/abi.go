package ledger

const (
	methodCreateGame       = "createGame"
	methodMakeMove         = "makeMove"
	methodGetBoard         = "getBoard"
	methodGetCurrentPlayer = "getCurrentPlayer"
	methodGetWinner        = "getWinner"

	eventGameCreated = "GameCreated"
)

// ticTacToeABI is the interface of the deployed TicTacToe contract.
const ticTacToeABI = `[
	{"type":"function","name":"createGame","stateMutability":"nonpayable","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"makeMove","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"uint256"},{"name":"index","type":"uint8"}],"outputs":[]},
	{"type":"function","name":"getBoard","stateMutability":"view","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[{"name":"","type":"uint8[9]"}]},
	{"type":"function","name":"getCurrentPlayer","stateMutability":"view","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"getWinner","stateMutability":"view","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"event","name":"GameCreated","anonymous":false,"inputs":[{"name":"gameId","type":"uint256","indexed":true},{"name":"player","type":"address","indexed":true}]}
]`
