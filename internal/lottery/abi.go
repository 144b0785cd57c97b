package lottery

// ABI is the call surface of the deployed FantomLottery contract.
const ABI = `[
	{"type":"function","name":"enter","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"draw","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"getPaid","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"viewWinnings","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewDrawFrequency","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewTicketPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewWinChance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewCurrentLottery","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewTicketHolders","stateMutability":"view","inputs":[{"name":"_ticketID","type":"bytes32"}],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"viewTicketNumber","stateMutability":"view","inputs":[{"name":"_ticketID","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewStartTime","stateMutability":"view","inputs":[{"name":"_lottoNumber","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewLastDrawTime","stateMutability":"view","inputs":[{"name":"_lottoNumber","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewTotalPot","stateMutability":"view","inputs":[{"name":"_lottoNumber","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"viewWinningTicket","stateMutability":"view","inputs":[{"name":"_lottoNumber","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
	{"type":"function","name":"viewUserTicketList","stateMutability":"view","inputs":[{"name":"_lottoNumber","type":"uint256"}],"outputs":[{"name":"","type":"bytes32[]"}]},
	{"type":"function","name":"readyToDraw","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]}
]`
